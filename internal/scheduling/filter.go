package scheduling

import "time"

// slotMatchEpsilon is the tolerance used when matching a generated candidate
// against a persisted slot row. Candidate times are computed while persisted
// rows round-trip through the store, so the comparison allows sub-second
// drift.
const slotMatchEpsilon = time.Second

// FilterBusy drops every candidate that overlaps any busy interval. Intervals
// are half-open: [a0,a1) and [b0,b1) overlap iff a0 < b1 && b0 < a1, so
// adjacent intervals do not conflict. Candidates are all-or-nothing, never
// trimmed. An empty or missing busy set drops nothing.
func FilterBusy(candidates []Interval, busy []BusyInterval) []Interval {
	if len(busy) == 0 {
		return candidates
	}

	kept := make([]Interval, 0, len(candidates))
	for _, c := range candidates {
		conflict := false
		for _, b := range busy {
			if c.Start.Before(b.EndTime) && b.StartTime.Before(c.End) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, c)
		}
	}
	return kept
}

// FilterDeleted drops candidates whose start and end match a user-deleted
// slot. Deletions are sticky: a slot the user hid must not reappear even
// though regeneration recomputes the whole window from scratch.
func FilterDeleted(candidates []Interval, deleted []AvailabilitySlot) []Interval {
	return filterMatching(candidates, deleted)
}

// FilterBooked drops candidates matching a slot referenced by a non-cancelled
// appointment. A booked slot must not be regenerated as free even after its
// original row is purged, until the appointment is cancelled.
func FilterBooked(candidates []Interval, appointed []AvailabilitySlot) []Interval {
	return filterMatching(candidates, appointed)
}

func filterMatching(candidates []Interval, slots []AvailabilitySlot) []Interval {
	if len(slots) == 0 {
		return candidates
	}

	kept := make([]Interval, 0, len(candidates))
	for _, c := range candidates {
		matched := false
		for _, s := range slots {
			if withinEpsilon(c.Start, s.StartTime) && withinEpsilon(c.End, s.EndTime) {
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, c)
		}
	}
	return kept
}

func withinEpsilon(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < slotMatchEpsilon
}

// sameSlotWithin reports whether two intervals describe the same slot, with
// both endpoints within the given tolerance. Used by the user-edit reconcile,
// where the tolerance accounts for client-side clock rounding and is wider
// than the generator epsilon.
func sameSlotWithin(aStart, aEnd, bStart, bEnd time.Time, tolerance time.Duration) bool {
	ds := aStart.Sub(bStart)
	if ds < 0 {
		ds = -ds
	}
	de := aEnd.Sub(bEnd)
	if de < 0 {
		de = -de
	}
	return ds < tolerance && de < tolerance
}
