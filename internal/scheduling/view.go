package scheduling

import "time"

// quietHoursEnd is the local time before which slots are hidden when a
// profile opts into blocking early-morning hours.
const quietHoursEnd = 8

// LocalSlot is a slot projected into a viewer's timezone for display.
type LocalSlot struct {
	ID    string
	Start time.Time
	End   time.Time
}

// ToLocalView converts stored UTC slots into the viewer's timezone and, when
// blockEarlyHours is set, hides slots starting before 08:00 local. This is a
// display filter only: nothing is persisted and the input is not mutated. An
// unresolvable timezone falls back to UTC rather than failing the view.
func ToLocalView(slots []AvailabilitySlot, timezone string, blockEarlyHours bool) []LocalSlot {
	loc, err := resolveLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	out := make([]LocalSlot, 0, len(slots))
	for _, s := range slots {
		start := s.StartTime.In(loc)
		if blockEarlyHours && start.Hour() < quietHoursEnd {
			continue
		}
		out = append(out, LocalSlot{
			ID:    s.ID.String(),
			Start: start,
			End:   s.EndTime.In(loc),
		})
	}
	return out
}
