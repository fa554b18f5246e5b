package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrProfileNotFound     = errors.New("user profile not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrConflict is returned by compare-and-swap repository updates when the
	// row no longer matches the expected prior state.
	ErrConflict = errors.New("row state changed concurrently")
)

// Repository contains all DB interactions needed by the engine.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)

	// Busy intervals: read by the busy-time filter, appended by the calendar
	// import path. Never updated or deduplicated.
	ListBusyIntervals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]BusyInterval, error)
	InsertBusyIntervals(ctx context.Context, userID uuid.UUID, intervals []Interval, importedAt time.Time) error

	GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)
	ListActiveSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error)
	ListUnbookedSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error)
	ListDeletedSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error)
	ListBookedSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error)

	// ListAppointedSlots returns the slots referenced by any non-cancelled
	// appointment for the given slot owner (input to the booking filter).
	ListAppointedSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error)

	// ReplaceActiveSlots deletes the user's disposable rows (booked=false,
	// user_deleted=false) and inserts the survivors, all in one transaction.
	ReplaceActiveSlots(ctx context.Context, userID uuid.UUID, slots []Interval, durationMinutes int, now time.Time) error

	// SetSlotBooked flips the booked flag only if it currently equals from;
	// returns ErrConflict otherwise.
	SetSlotBooked(ctx context.Context, slotID uuid.UUID, from, to bool, now time.Time) (*AvailabilitySlot, error)
	SetSlotUserDeleted(ctx context.Context, slotID uuid.UUID, deleted bool, now time.Time) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	HasActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (bool, error)
	CreateRequestedAppointment(ctx context.Context, bookerID, receiverID, slotID uuid.UUID, now time.Time) (*Appointment, error)

	// UpdateAppointmentStatus moves the appointment to the target status only
	// if its current status is one of from; returns ErrConflict otherwise.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, now time.Time, from ...AppointmentStatus) (*Appointment, error)
	SetAppointmentMeeting(ctx context.Context, id uuid.UUID, meetingID, meetingLink string, now time.Time) error

	ListAppointmentsByBooker(ctx context.Context, bookerID uuid.UUID) ([]AppointmentDetail, error)
	ListAppointmentsByReceiver(ctx context.Context, receiverID uuid.UUID) ([]AppointmentDetail, error)
}
