package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffeechat/scheduler/internal/config"
	redisclient "github.com/coffeechat/scheduler/internal/redis"
)

var (
	ErrSelfBooking       = errors.New("cannot book an appointment with yourself")
	ErrSlotAlreadyBooked = errors.New("timeslot already booked")
	ErrSlotUnavailable   = errors.New("timeslot is no longer offered")
	ErrNotAuthorized     = errors.New("not authorized for this appointment")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrBusyUserRetry     = errors.New("user schedule is being updated, please retry")
)

// MeetingDetails is what the meeting-creation collaborator returns for a
// freshly requested appointment.
type MeetingDetails struct {
	MeetingID   string
	MeetingLink string
}

// MeetingCreator creates an external conference event for an appointment.
// Its failure is a soft failure: the appointment stays valid with no link.
type MeetingCreator interface {
	CreateMeeting(ctx context.Context, booker, receiver *User, start, end time.Time) (*MeetingDetails, error)
}

// Service is the availability and booking engine. All slot-mutating
// operations for one user are serialized through the per-user locker;
// operations for different users run independently.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	meetings MeetingCreator
	cfg      config.Config
	log      *zap.Logger
}

func NewService(repo Repository, locker redisclient.Locker, meetings MeetingCreator, cfg config.Config, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		meetings: meetings,
		cfg:      cfg,
		log:      log,
	}
}

// Reconcile regenerates the user's availability: it discards every disposable
// slot row, re-tiles the 7-day window from now, subtracts busy, deleted and
// booked time, and persists the survivors in one transaction. Idempotent; two
// consecutive calls with no intervening state change produce the same active
// set.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID, now time.Time) error {
	err := s.locker.WithUserLock(ctx, userID, func(lockCtx context.Context) error {
		return s.reconcileLocked(lockCtx, userID, now)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrBusyUserRetry
	}
	return err
}

func (s *Service) reconcileLocked(ctx context.Context, userID uuid.UUID, now time.Time) error {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	s.healOrphanedBookings(ctx, userID, now)

	candidates, err := GenerateCandidates(profile, now)
	if err != nil {
		return fmt.Errorf("generate candidates: %w", err)
	}

	loc, err := resolveLocation(profile.Timezone)
	if err != nil {
		return err
	}
	windowStart, windowEnd := GenerationWindow(loc, now)

	// Busy time is fail-open: no data means no conflicts known.
	busy, err := s.repo.ListBusyIntervals(ctx, userID, windowStart, windowEnd)
	if err != nil {
		s.log.Warn("busy interval lookup failed, generating without calendar conflicts",
			zap.String("user_id", userID.String()), zap.Error(err))
		busy = nil
	}

	deleted, err := s.repo.ListDeletedSlots(ctx, userID)
	if err != nil {
		return fmt.Errorf("list deleted slots: %w", err)
	}

	appointed, err := s.repo.ListAppointedSlots(ctx, userID)
	if err != nil {
		return fmt.Errorf("list appointed slots: %w", err)
	}

	survivors := FilterBooked(FilterDeleted(FilterBusy(candidates, busy), deleted), appointed)

	if err := s.repo.ReplaceActiveSlots(ctx, userID, survivors, profile.SlotDurationMinutes, now); err != nil {
		return fmt.Errorf("replace active slots: %w", err)
	}

	s.log.Info("availability reconciled",
		zap.String("user_id", userID.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("active", len(survivors)))

	return nil
}

// healOrphanedBookings clears the booked flag on slots that no non-cancelled
// appointment references. Such rows are an impossible state; they are logged
// and made disposable so the current pass regenerates them. Failures here
// never abort the pass.
func (s *Service) healOrphanedBookings(ctx context.Context, userID uuid.UUID, now time.Time) {
	booked, err := s.repo.ListBookedSlots(ctx, userID)
	if err != nil {
		s.log.Warn("booked slot scan failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	for _, slot := range booked {
		active, err := s.repo.HasActiveAppointmentForSlot(ctx, slot.ID)
		if err != nil {
			s.log.Warn("active appointment check failed",
				zap.String("slot_id", slot.ID.String()), zap.Error(err))
			continue
		}
		if active {
			continue
		}

		s.log.Warn("booked slot has no active appointment, releasing",
			zap.String("user_id", userID.String()),
			zap.String("slot_id", slot.ID.String()))

		if _, err := s.repo.SetSlotBooked(ctx, slot.ID, true, false, now); err != nil && !errors.Is(err, ErrConflict) {
			s.log.Warn("release orphaned slot failed",
				zap.String("slot_id", slot.ID.String()), zap.Error(err))
		}
	}
}

// ReconcileAll runs a reconciliation pass for every known user. One user's
// failure is logged and does not stop the sweep.
func (s *Service) ReconcileAll(ctx context.Context, now time.Time) error {
	userIDs, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var failed int
	for _, id := range userIDs {
		if err := s.Reconcile(ctx, id, now); err != nil {
			failed++
			s.log.Error("reconcile failed", zap.String("user_id", id.String()), zap.Error(err))
		}
	}

	s.log.Info("reconcile sweep complete", zap.Int("users", len(userIDs)), zap.Int("failed", failed))
	return nil
}

// ListActiveSlots returns the user's active slots ordered by start time. An
// empty active set triggers one synchronous reconcile so a user who has never
// been generated (or whose pass failed) still gets slots on demand.
func (s *Service) ListActiveSlots(ctx context.Context, userID uuid.UUID, now time.Time) ([]AvailabilitySlot, error) {
	slots, err := s.repo.ListActiveSlots(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active slots: %w", err)
	}
	if len(slots) > 0 {
		return slots, nil
	}

	if err := s.Reconcile(ctx, userID, now); err != nil {
		return nil, err
	}

	slots, err = s.repo.ListActiveSlots(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active slots after reconcile: %w", err)
	}
	return slots, nil
}

// ActiveSlots returns the persisted active set without triggering
// regeneration, for viewers browsing someone else's schedule.
func (s *Service) ActiveSlots(ctx context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	return s.repo.ListActiveSlots(ctx, userID)
}

// SaveUserEdits reconciles the user's unbooked slots against the kept set the
// client sent back: anything not kept is marked user-deleted, anything kept
// that was previously deleted is restored. Matching tolerates
// cfg.SlotMatchTolerance of drift per endpoint, since clients round
// timestamps. Booked slots are never touched.
func (s *Service) SaveUserEdits(ctx context.Context, userID uuid.UUID, kept []Interval, now time.Time) error {
	err := s.locker.WithUserLock(ctx, userID, func(lockCtx context.Context) error {
		existing, err := s.repo.ListUnbookedSlots(lockCtx, userID)
		if err != nil {
			return fmt.Errorf("list unbooked slots: %w", err)
		}

		for _, slot := range existing {
			isKept := false
			for _, k := range kept {
				if sameSlotWithin(slot.StartTime, slot.EndTime, k.Start, k.End, s.cfg.SlotMatchTolerance) {
					isKept = true
					break
				}
			}

			switch {
			case isKept && slot.UserDeleted:
				if err := s.repo.SetSlotUserDeleted(lockCtx, slot.ID, false, now); err != nil {
					return fmt.Errorf("restore slot %s: %w", slot.ID, err)
				}
			case !isKept && !slot.UserDeleted:
				if err := s.repo.SetSlotUserDeleted(lockCtx, slot.ID, true, now); err != nil {
					return fmt.Errorf("delete slot %s: %w", slot.ID, err)
				}
			}
		}
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrBusyUserRetry
	}
	return err
}

// ListAppointments returns the user's appointments split into those they
// booked and those they received.
func (s *Service) ListAppointments(ctx context.Context, userID uuid.UUID) (sent, received []AppointmentDetail, err error) {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, nil, err
	}

	sent, err = s.repo.ListAppointmentsByBooker(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list sent appointments: %w", err)
	}
	received, err = s.repo.ListAppointmentsByReceiver(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list received appointments: %w", err)
	}
	return sent, received, nil
}

func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}
