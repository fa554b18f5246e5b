package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusRequested AppointmentStatus = "requested"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Allowed slot durations in minutes.
const (
	DurationFifteen = 15
	DurationThirty  = 30
	DurationSixty   = 60
)

func ValidDuration(minutes int) bool {
	switch minutes {
	case DurationFifteen, DurationThirty, DurationSixty:
		return true
	}
	return false
}

type User struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile holds the per-user settings the generator reads. Timezone is an
// IANA name; SlotDurationMinutes must be one of the allowed durations at
// generation time. Changing the duration never resizes persisted slots.
type Profile struct {
	UserID              uuid.UUID
	Timezone            string
	SlotDurationMinutes int
	BlockEarlyHours     bool
	CalendarConnected   bool
	UpdatedAt           time.Time
}

// AvailabilitySlot is one bookable interval for one user. Start and End are
// always stored in UTC with End = Start + duration. Rows with
// booked=false and user_deleted=false are disposable: each reconciliation
// pass deletes and regenerates them wholesale. Booked or user-deleted rows
// are preserved as state markers.
type AvailabilitySlot struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Booked          bool
	UserDeleted     bool
	UpdatedAt       time.Time
}

// BusyInterval is an externally imported unavailable range. The engine only
// reads these; the calendar import path appends them and never deduplicates,
// so overlapping duplicates are a normal filtering input.
type BusyInterval struct {
	ID         int64
	UserID     uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	ImportedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	BookerID    uuid.UUID
	ReceiverID  uuid.UUID
	SlotID      *uuid.UUID
	Status      AppointmentStatus
	MeetingID   *string
	MeetingLink *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AppointmentDetail is an appointment hydrated with its slot and the two
// participants, for listing endpoints.
type AppointmentDetail struct {
	Appointment
	Slot     *AvailabilitySlot
	Booker   *User
	Receiver *User
}

// Interval is a half-open candidate slot [Start, End) produced by the
// generator and consumed by the filters.
type Interval struct {
	Start time.Time
	End   time.Time
}
