package scheduling

import (
	"errors"
	"fmt"
	"time"
)

// WindowDays is how far ahead availability is generated.
const WindowDays = 7

var (
	ErrInvalidDuration = errors.New("slot duration must be 15, 30 or 60 minutes")
	ErrInvalidTimezone = errors.New("unresolvable timezone")
)

// GenerationWindow computes the half-open generation window for a user. The
// window starts at the user's local midnight of ref, converted to UTC, and
// runs WindowDays forward. Tiling happens in UTC so a DST shift inside the
// window cannot produce uneven slots.
func GenerationWindow(loc *time.Location, ref time.Time) (time.Time, time.Time) {
	local := ref.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	start := midnight.UTC()
	return start, start.Add(WindowDays * 24 * time.Hour)
}

// GenerateCandidates produces the raw, exhaustive candidate slot sequence for
// a profile: contiguous duration-wide half-open intervals covering the
// generation window, strictly ascending, no gaps, no overlaps. A trailing
// partial interval is discarded. Pure: recomputed fresh on each call, no side
// effects, deterministic for a fixed ref.
func GenerateCandidates(profile *Profile, ref time.Time) ([]Interval, error) {
	if !ValidDuration(profile.SlotDurationMinutes) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDuration, profile.SlotDurationMinutes)
	}

	loc, err := resolveLocation(profile.Timezone)
	if err != nil {
		return nil, err
	}

	start, end := GenerationWindow(loc, ref)
	dur := time.Duration(profile.SlotDurationMinutes) * time.Minute

	candidates := make([]Interval, 0, int(end.Sub(start)/dur))
	for cur := start; !cur.Add(dur).After(end); cur = cur.Add(dur) {
		candidates = append(candidates, Interval{Start: cur, End: cur.Add(dur)})
	}
	return candidates, nil
}

func resolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}
