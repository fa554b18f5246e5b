package api

import (
	"time"

	"github.com/google/uuid"
)

type SlotView struct {
	SlotID string `json:"slot_id,omitempty"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type SlotsResponse struct {
	Timezone string     `json:"timezone"`
	Slots    []SlotView `json:"slots"`
}

type SaveSlotsRequest struct {
	Slots []SlotEdit `json:"slots"`
}

type SlotEdit struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type BookRequest struct {
	SlotID     string `json:"slot_id"`
	BookerID   string `json:"booker_id"`
	ReceiverID string `json:"receiver_id"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	SlotID      *uuid.UUID `json:"slot_id,omitempty"`
	BookerID    uuid.UUID  `json:"booker_id"`
	ReceiverID  uuid.UUID  `json:"receiver_id"`
	Status      string     `json:"status"`
	MeetingLink *string    `json:"meeting_link,omitempty"`
}

type AppointmentListItem struct {
	AppointmentID   uuid.UUID `json:"appointment_id"`
	CounterpartName string    `json:"counterpart_name"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration"`
	Status          string    `json:"status"`
	MeetingLink     *string   `json:"meeting_link,omitempty"`
}

type AppointmentListResponse struct {
	Sent     []AppointmentListItem `json:"sent"`
	Received []AppointmentListItem `json:"received"`
}

type ActionRequest struct {
	UserID string `json:"user_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
