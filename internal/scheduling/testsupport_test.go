package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffeechat/scheduler/internal/config"
)

// memoryRepo is an in-memory Repository used by the engine tests. Mutations
// follow the same compare-and-swap semantics as the Postgres implementation.
type memoryRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*User
	profiles map[uuid.UUID]*Profile
	slots    map[uuid.UUID]*AvailabilitySlot
	busy     []BusyInterval
	appts    map[uuid.UUID]*Appointment

	busyErr    error // injected ListBusyIntervals failure
	replaceErr error // injected ReplaceActiveSlots failure
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:    make(map[uuid.UUID]*User),
		profiles: make(map[uuid.UUID]*Profile),
		slots:    make(map[uuid.UUID]*AvailabilitySlot),
		appts:    make(map[uuid.UUID]*Appointment),
	}
}

func (r *memoryRepo) addUser(name, timezone string, durationMinutes int, blockEarly bool) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	now := time.Now().UTC()
	email := name + "@example.com"
	r.users[id] = &User{ID: id, Name: name, Email: &email, CreatedAt: now, UpdatedAt: now}
	r.profiles[id] = &Profile{
		UserID:              id,
		Timezone:            timezone,
		SlotDurationMinutes: durationMinutes,
		BlockEarlyHours:     blockEarly,
		UpdatedAt:           now,
	}
	return id
}

func (r *memoryRepo) addBusy(userID uuid.UUID, start, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, BusyInterval{
		ID:         int64(len(r.busy) + 1),
		UserID:     userID,
		StartTime:  start,
		EndTime:    end,
		ImportedAt: time.Now().UTC(),
	})
}

func (r *memoryRepo) addSlot(userID uuid.UUID, start, end time.Time, durationMinutes int, booked, deleted bool) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.slots[id] = &AvailabilitySlot{
		ID:              id,
		UserID:          userID,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: durationMinutes,
		Booked:          booked,
		UserDeleted:     deleted,
		UpdatedAt:       time.Now().UTC(),
	}
	return id
}

func (r *memoryRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memoryRepo) ListUserIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memoryRepo) GetProfile(_ context.Context, userID uuid.UUID) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) ListBusyIntervals(_ context.Context, userID uuid.UUID, from, to time.Time) ([]BusyInterval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busyErr != nil {
		return nil, r.busyErr
	}

	var out []BusyInterval
	for _, b := range r.busy {
		if b.UserID == userID && b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertBusyIntervals(_ context.Context, userID uuid.UUID, intervals []Interval, importedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, iv := range intervals {
		r.busy = append(r.busy, BusyInterval{
			ID:         int64(len(r.busy) + 1),
			UserID:     userID,
			StartTime:  iv.Start,
			EndTime:    iv.End,
			ImportedAt: importedAt,
		})
	}
	return nil
}

func (r *memoryRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryRepo) listSlots(userID uuid.UUID, match func(*AvailabilitySlot) bool) []AvailabilitySlot {
	var out []AvailabilitySlot
	for _, s := range r.slots {
		if s.UserID == userID && match(s) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (r *memoryRepo) ListActiveSlots(_ context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listSlots(userID, func(s *AvailabilitySlot) bool { return !s.Booked && !s.UserDeleted }), nil
}

func (r *memoryRepo) ListUnbookedSlots(_ context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listSlots(userID, func(s *AvailabilitySlot) bool { return !s.Booked }), nil
}

func (r *memoryRepo) ListDeletedSlots(_ context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listSlots(userID, func(s *AvailabilitySlot) bool { return s.UserDeleted }), nil
}

func (r *memoryRepo) ListBookedSlots(_ context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listSlots(userID, func(s *AvailabilitySlot) bool { return s.Booked }), nil
}

func (r *memoryRepo) ListAppointedSlots(_ context.Context, userID uuid.UUID) ([]AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	referenced := make(map[uuid.UUID]bool)
	for _, a := range r.appts {
		if a.Status != StatusCancelled && a.SlotID != nil {
			referenced[*a.SlotID] = true
		}
	}
	return r.listSlots(userID, func(s *AvailabilitySlot) bool { return referenced[s.ID] }), nil
}

func (r *memoryRepo) ReplaceActiveSlots(_ context.Context, userID uuid.UUID, slots []Interval, durationMinutes int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}

	for id, s := range r.slots {
		if s.UserID == userID && !s.Booked && !s.UserDeleted {
			delete(r.slots, id)
			// Mirror the ON DELETE SET NULL foreign key: historical
			// appointments drop their reference when the row goes away.
			for _, a := range r.appts {
				if a.SlotID != nil && *a.SlotID == id {
					a.SlotID = nil
				}
			}
		}
	}
	for _, iv := range slots {
		id := uuid.New()
		r.slots[id] = &AvailabilitySlot{
			ID:              id,
			UserID:          userID,
			StartTime:       iv.Start,
			EndTime:         iv.End,
			DurationMinutes: durationMinutes,
			UpdatedAt:       now,
		}
	}
	return nil
}

func (r *memoryRepo) SetSlotBooked(_ context.Context, slotID uuid.UUID, from, to bool, now time.Time) (*AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Booked != from {
		return nil, ErrConflict
	}
	s.Booked = to
	s.UpdatedAt = now
	cp := *s
	return &cp, nil
}

func (r *memoryRepo) SetSlotUserDeleted(_ context.Context, slotID uuid.UUID, deleted bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	s.UserDeleted = deleted
	s.UpdatedAt = now
	return nil
}

func (r *memoryRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) HasActiveAppointmentForSlot(_ context.Context, slotID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.SlotID != nil && *a.SlotID == slotID && a.Status != StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) CreateRequestedAppointment(_ context.Context, bookerID, receiverID, slotID uuid.UUID, now time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	sid := slotID
	a := &Appointment{
		ID:         id,
		BookerID:   bookerID,
		ReceiverID: receiverID,
		SlotID:     &sid,
		Status:     StatusRequested,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.appts[id] = a
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, to AppointmentStatus, now time.Time, from ...AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	allowed := false
	for _, f := range from {
		if a.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrConflict
	}

	a.Status = to
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) SetAppointmentMeeting(_ context.Context, id uuid.UUID, meetingID, meetingLink string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.MeetingID = &meetingID
	a.MeetingLink = &meetingLink
	a.UpdatedAt = now
	return nil
}

func (r *memoryRepo) ListAppointmentsByBooker(_ context.Context, bookerID uuid.UUID) ([]AppointmentDetail, error) {
	return r.listAppointments(func(a *Appointment) bool { return a.BookerID == bookerID })
}

func (r *memoryRepo) ListAppointmentsByReceiver(_ context.Context, receiverID uuid.UUID) ([]AppointmentDetail, error) {
	return r.listAppointments(func(a *Appointment) bool { return a.ReceiverID == receiverID })
}

func (r *memoryRepo) listAppointments(match func(*Appointment) bool) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AppointmentDetail
	for _, a := range r.appts {
		if !match(a) {
			continue
		}

		d := AppointmentDetail{Appointment: *a}
		if a.SlotID != nil {
			if s, ok := r.slots[*a.SlotID]; ok {
				cp := *s
				d.Slot = &cp
			}
		}
		if b, ok := r.users[a.BookerID]; ok {
			cp := *b
			d.Booker = &cp
		}
		if rc, ok := r.users[a.ReceiverID]; ok {
			cp := *rc
			d.Receiver = &cp
		}
		out = append(out, d)
	}
	return out, nil
}

// localLocker serializes per user with in-process mutexes, standing in for
// the Redis locker.
type localLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *localLocker) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// fakeMeetings records meeting-creation calls and can be set to fail.
type fakeMeetings struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeMeetings) CreateMeeting(_ context.Context, booker, receiver *User, start, end time.Time) (*MeetingDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &MeetingDetails{
		MeetingID:   "meet-" + start.Format("20060102T1504"),
		MeetingLink: "https://meet.example.com/" + booker.Name + "-" + receiver.Name,
	}, nil
}

func newTestService(repo *memoryRepo, meetings MeetingCreator) *Service {
	cfg := config.Config{
		SlotMatchTolerance: time.Minute,
		LockTTL:            5 * time.Second,
	}
	return NewService(repo, newLocalLocker(), meetings, cfg, zap.NewNop())
}
