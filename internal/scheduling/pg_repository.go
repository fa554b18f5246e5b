package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var email *string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&email,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Email = email
	return &u, nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile

	err := row.Scan(
		&p.UserID,
		&p.Timezone,
		&p.SlotDurationMinutes,
		&p.BlockEarlyHours,
		&p.CalendarConnected,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.StartTime,
		&s.EndTime,
		&s.DurationMinutes,
		&s.Booked,
		&s.UserDeleted,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotID *uuid.UUID
	var meetingID, meetingLink *string

	err := row.Scan(
		&a.ID,
		&a.BookerID,
		&a.ReceiverID,
		&slotID,
		&a.Status,
		&meetingID,
		&meetingLink,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.SlotID = slotID
	a.MeetingID = meetingID
	a.MeetingLink = meetingLink
	return &a, nil
}

func collectSlots(rows pgx.Rows) ([]AvailabilitySlot, error) {
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const slotColumns = `id, user_id, start_time, end_time, duration_minutes, booked, user_deleted, updated_at`

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PgRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, timezone, slot_duration_minutes, block_early_hours, calendar_connected, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`, userID)
	return scanProfile(row)
}

func (r *PgRepository) ListBusyIntervals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]BusyInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, start_time, end_time, imported_at
		FROM busy_intervals
		WHERE user_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BusyInterval
	for rows.Next() {
		var b BusyInterval
		if err := rows.Scan(&b.ID, &b.UserID, &b.StartTime, &b.EndTime, &b.ImportedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertBusyIntervals(ctx context.Context, userID uuid.UUID, intervals []Interval, importedAt time.Time) error {
	if len(intervals) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, iv := range intervals {
		_, err := tx.Exec(ctx, `
			INSERT INTO busy_intervals (user_id, start_time, end_time, imported_at)
			VALUES ($1, $2, $3, $4)
		`, userID, iv.Start, iv.End, importedAt)
		if err != nil {
			return fmt.Errorf("insert busy interval: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListActiveSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE user_id = $1 AND booked = false AND user_deleted = false
		ORDER BY start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListUnbookedSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE user_id = $1 AND booked = false
		ORDER BY start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListDeletedSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE user_id = $1 AND user_deleted = true
		ORDER BY start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListBookedSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE user_id = $1 AND booked = true
		ORDER BY start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListAppointedSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.user_id, s.start_time, s.end_time, s.duration_minutes, s.booked, s.user_deleted, s.updated_at
		FROM availability_slots s
		JOIN appointments a ON a.slot_id = s.id
		WHERE s.user_id = $1 AND a.status <> 'cancelled'
		ORDER BY s.start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) ReplaceActiveSlots(ctx context.Context, userID uuid.UUID, slots []Interval, durationMinutes int, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE user_id = $1 AND booked = false AND user_deleted = false
	`, userID)
	if err != nil {
		return fmt.Errorf("delete disposable slots: %w", err)
	}

	for _, iv := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_slots (id, user_id, start_time, end_time, duration_minutes, booked, user_deleted, updated_at)
			VALUES ($1, $2, $3, $4, $5, false, false, $6)
		`, uuid.New(), userID, iv.Start, iv.End, durationMinutes, now)
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) SetSlotBooked(ctx context.Context, slotID uuid.UUID, from, to bool, now time.Time) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE availability_slots
		SET booked = $2,
		    updated_at = $3
		WHERE id = $1
		  AND booked = $4
		RETURNING `+slotColumns+`
	`, slotID, to, now, from)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		// Distinguish a missing row from a lost compare-and-swap.
		if _, getErr := r.GetSlotByID(ctx, slotID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	return slot, err
}

func (r *PgRepository) SetSlotUserDeleted(ctx context.Context, slotID uuid.UUID, deleted bool, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET user_deleted = $2,
		    updated_at = $3
		WHERE id = $1
	`, slotID, deleted, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

const appointmentColumns = `id, booker_id, receiver_id, slot_id, status, meeting_id, meeting_link, created_at, updated_at`

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) HasActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE slot_id = $1 AND status <> 'cancelled'
		)
	`, slotID).Scan(&exists)
	return exists, err
}

func (r *PgRepository) CreateRequestedAppointment(ctx context.Context, bookerID, receiverID, slotID uuid.UUID, now time.Time) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, booker_id, receiver_id, slot_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'requested', $5, $5)
		RETURNING `+appointmentColumns+`
	`, id, bookerID, receiverID, slotID, now)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, now time.Time, from ...AppointmentStatus) (*Appointment, error) {
	fromStates := make([]string, len(from))
	for i, f := range from {
		fromStates[i] = string(f)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING `+appointmentColumns+`
	`, id, to, now, fromStates)

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		if _, getErr := r.GetAppointmentByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	return appt, err
}

func (r *PgRepository) SetAppointmentMeeting(ctx context.Context, id uuid.UUID, meetingID, meetingLink string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET meeting_id = $2,
		    meeting_link = $3,
		    updated_at = $4
		WHERE id = $1
	`, id, meetingID, meetingLink, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointmentsByBooker(ctx context.Context, bookerID uuid.UUID) ([]AppointmentDetail, error) {
	return r.listAppointments(ctx, "a.booker_id", bookerID)
}

func (r *PgRepository) ListAppointmentsByReceiver(ctx context.Context, receiverID uuid.UUID) ([]AppointmentDetail, error) {
	return r.listAppointments(ctx, "a.receiver_id", receiverID)
}

func (r *PgRepository) listAppointments(ctx context.Context, whereColumn string, userID uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.booker_id, a.receiver_id, a.slot_id, a.status, a.meeting_id, a.meeting_link, a.created_at, a.updated_at,
		       s.id, s.user_id, s.start_time, s.end_time, s.duration_minutes, s.booked, s.user_deleted, s.updated_at,
		       b.id, b.name, b.email, b.created_at, b.updated_at,
		       rc.id, rc.name, rc.email, rc.created_at, rc.updated_at
		FROM appointments a
		LEFT JOIN availability_slots s ON s.id = a.slot_id
		JOIN users b ON b.id = a.booker_id
		JOIN users rc ON rc.id = a.receiver_id
		WHERE `+whereColumn+` = $1
		ORDER BY a.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		var slotID *uuid.UUID
		var meetingID, meetingLink *string

		var sID, sUserID *uuid.UUID
		var sStart, sEnd, sUpdated *time.Time
		var sDuration *int
		var sBooked, sDeleted *bool

		var booker, receiver User
		var bookerEmail, receiverEmail *string

		err := rows.Scan(
			&d.ID, &d.BookerID, &d.ReceiverID, &slotID, &d.Status, &meetingID, &meetingLink, &d.CreatedAt, &d.UpdatedAt,
			&sID, &sUserID, &sStart, &sEnd, &sDuration, &sBooked, &sDeleted, &sUpdated,
			&booker.ID, &booker.Name, &bookerEmail, &booker.CreatedAt, &booker.UpdatedAt,
			&receiver.ID, &receiver.Name, &receiverEmail, &receiver.CreatedAt, &receiver.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		d.SlotID = slotID
		d.MeetingID = meetingID
		d.MeetingLink = meetingLink

		if sID != nil {
			d.Slot = &AvailabilitySlot{
				ID:              *sID,
				UserID:          *sUserID,
				StartTime:       *sStart,
				EndTime:         *sEnd,
				DurationMinutes: *sDuration,
				Booked:          *sBooked,
				UserDeleted:     *sDeleted,
				UpdatedAt:       *sUpdated,
			}
		}

		booker.Email = bookerEmail
		receiver.Email = receiverEmail
		d.Booker = &booker
		d.Receiver = &receiver

		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
