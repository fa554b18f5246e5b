package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/coffeechat/scheduler/internal/redis"
)

// Book creates a requested appointment against a free slot. The critical
// section runs under the slot owner's lock so it cannot race a reconcile pass
// or another booking for the same user; inside it the booked flag flips with
// a compare-and-swap, so losing a race surfaces as ErrSlotAlreadyBooked
// rather than a double booking.
//
// Meeting-link creation happens after the appointment exists and is a soft
// failure: the appointment stays valid with no link if the collaborator is
// down.
func (s *Service) Book(ctx context.Context, bookerID, receiverID, slotID uuid.UUID, now time.Time) (*Appointment, error) {
	if bookerID == receiverID {
		return nil, ErrSelfBooking
	}

	booker, err := s.repo.GetUserByID(ctx, bookerID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.repo.GetUserByID(ctx, receiverID)
	if err != nil {
		return nil, err
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.UserDeleted {
		return nil, ErrSlotUnavailable
	}
	if slot.Booked {
		return nil, ErrSlotAlreadyBooked
	}

	var created *Appointment

	err = s.locker.WithUserLock(ctx, slot.UserID, func(lockCtx context.Context) error {
		if _, err := s.repo.SetSlotBooked(lockCtx, slotID, false, true, now); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrSlotAlreadyBooked
			}
			return fmt.Errorf("mark slot booked: %w", err)
		}

		appt, err := s.repo.CreateRequestedAppointment(lockCtx, bookerID, receiverID, slotID, now)
		if err != nil {
			// Undo the flag so the slot is not stranded as booked.
			if _, relErr := s.repo.SetSlotBooked(lockCtx, slotID, true, false, now); relErr != nil {
				s.log.Error("release slot after failed appointment insert",
					zap.String("slot_id", slotID.String()), zap.Error(relErr))
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBusyUserRetry
		}
		return nil, err
	}

	s.attachMeeting(ctx, created, booker, receiver, slot, now)

	s.log.Info("appointment requested",
		zap.String("appointment_id", created.ID.String()),
		zap.String("booker_id", bookerID.String()),
		zap.String("receiver_id", receiverID.String()),
		zap.Time("slot_start", slot.StartTime))

	return created, nil
}

func (s *Service) attachMeeting(ctx context.Context, appt *Appointment, booker, receiver *User, slot *AvailabilitySlot, now time.Time) {
	if s.meetings == nil {
		return
	}

	details, err := s.meetings.CreateMeeting(ctx, booker, receiver, slot.StartTime, slot.EndTime)
	if err != nil {
		s.log.Warn("meeting creation failed, appointment kept without link",
			zap.String("appointment_id", appt.ID.String()), zap.Error(err))
		return
	}

	if err := s.repo.SetAppointmentMeeting(ctx, appt.ID, details.MeetingID, details.MeetingLink, now); err != nil {
		s.log.Warn("store meeting link failed",
			zap.String("appointment_id", appt.ID.String()), zap.Error(err))
		return
	}

	appt.MeetingID = &details.MeetingID
	appt.MeetingLink = &details.MeetingLink
}

// Confirm moves a requested appointment to confirmed. Only the receiver may
// confirm. The slot is already booked, so no slot mutation happens and no
// user lock is taken.
func (s *Service) Confirm(ctx context.Context, appointmentID, actingUserID uuid.UUID, now time.Time) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if actingUserID != appt.ReceiverID {
		return ErrNotAuthorized
	}
	if appt.Status != StatusRequested {
		return ErrInvalidTransition
	}

	if _, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusConfirmed, now, StatusRequested); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("confirm appointment: %w", err)
	}

	s.log.Info("appointment confirmed", zap.String("appointment_id", appt.ID.String()))
	return nil
}

// Cancel moves a requested or confirmed appointment to cancelled and frees
// its slot so it is bookable again immediately, without waiting for the next
// reconcile. A slot the owner has meanwhile user-deleted stays deleted.
// Either party may cancel.
func (s *Service) Cancel(ctx context.Context, appointmentID, actingUserID uuid.UUID, now time.Time) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if actingUserID != appt.BookerID && actingUserID != appt.ReceiverID {
		return ErrNotAuthorized
	}
	if appt.Status != StatusRequested && appt.Status != StatusConfirmed {
		return ErrInvalidTransition
	}

	cancel := func(lockCtx context.Context) error {
		if _, err := s.repo.UpdateAppointmentStatus(lockCtx, appt.ID, StatusCancelled, now, StatusRequested, StatusConfirmed); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrInvalidTransition
			}
			return fmt.Errorf("cancel appointment: %w", err)
		}

		if appt.SlotID == nil {
			return nil
		}

		slot, err := s.repo.GetSlotByID(lockCtx, *appt.SlotID)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return nil
			}
			return fmt.Errorf("load slot: %w", err)
		}

		if slot.Booked && !slot.UserDeleted {
			if _, err := s.repo.SetSlotBooked(lockCtx, slot.ID, true, false, now); err != nil && !errors.Is(err, ErrConflict) {
				return fmt.Errorf("release slot: %w", err)
			}
		}
		return nil
	}

	if appt.SlotID != nil {
		slot, slotErr := s.repo.GetSlotByID(ctx, *appt.SlotID)
		if slotErr == nil {
			err = s.locker.WithUserLock(ctx, slot.UserID, cancel)
		} else if errors.Is(slotErr, ErrSlotNotFound) {
			err = cancel(ctx)
		} else {
			return fmt.Errorf("load slot: %w", slotErr)
		}
	} else {
		err = cancel(ctx)
	}

	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrBusyUserRetry
	}
	if err != nil {
		return err
	}

	s.log.Info("appointment cancelled",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("acting_user_id", actingUserID.String()))
	return nil
}
