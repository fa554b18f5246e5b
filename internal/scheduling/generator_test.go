package scheduling

import (
	"errors"
	"testing"
	"time"
)

func utcProfile(durationMinutes int) *Profile {
	return &Profile{Timezone: "UTC", SlotDurationMinutes: durationMinutes}
}

func TestGenerateCandidates_FullUTCWeek(t *testing.T) {
	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	candidates, err := GenerateCandidates(utcProfile(30), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(candidates) != 336 {
		t.Fatalf("expected 336 slots (7 days x 48), got %d", len(candidates))
	}

	first := candidates[0]
	if !first.Start.Equal(ref) || !first.End.Equal(ref.Add(30*time.Minute)) {
		t.Fatalf("unexpected first slot [%s, %s)", first.Start, first.End)
	}

	last := candidates[len(candidates)-1]
	wantLastStart := time.Date(2025, 1, 7, 23, 30, 0, 0, time.UTC)
	if !last.Start.Equal(wantLastStart) || !last.End.Equal(wantLastStart.Add(30*time.Minute)) {
		t.Fatalf("unexpected last slot [%s, %s)", last.Start, last.End)
	}
}

func TestGenerateCandidates_Tiling(t *testing.T) {
	ref := time.Date(2025, 6, 15, 14, 23, 45, 0, time.UTC)

	for _, duration := range []int{15, 30, 60} {
		candidates, err := GenerateCandidates(utcProfile(duration), ref)
		if err != nil {
			t.Fatalf("duration %d: %v", duration, err)
		}

		want := WindowDays * 24 * 60 / duration
		if len(candidates) != want {
			t.Fatalf("duration %d: expected %d slots, got %d", duration, want, len(candidates))
		}

		dur := time.Duration(duration) * time.Minute
		for i, c := range candidates {
			if !c.End.Equal(c.Start.Add(dur)) {
				t.Fatalf("slot %d is not %s wide: [%s, %s)", i, dur, c.Start, c.End)
			}
			if i > 0 && !c.Start.Equal(candidates[i-1].End) {
				t.Fatalf("gap or overlap between slot %d and %d", i-1, i)
			}
		}
	}
}

func TestGenerateCandidates_MidDayReferenceStartsAtLocalMidnight(t *testing.T) {
	// 2025-03-10 18:45 UTC is already 2025-03-11 02:45 in Taipei, so the
	// window must start at Taipei midnight of the 11th (16:00 UTC on the 10th).
	ref := time.Date(2025, 3, 10, 18, 45, 0, 0, time.UTC)
	profile := &Profile{Timezone: "Asia/Taipei", SlotDurationMinutes: 60}

	candidates, err := GenerateCandidates(profile, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStart := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
	if !candidates[0].Start.Equal(wantStart) {
		t.Fatalf("expected window start %s, got %s", wantStart, candidates[0].Start)
	}
	if len(candidates) != 7*24 {
		t.Fatalf("expected %d hourly slots, got %d", 7*24, len(candidates))
	}
}

func TestGenerateCandidates_Deterministic(t *testing.T) {
	ref := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)

	a, err := GenerateCandidates(utcProfile(15), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := GenerateCandidates(utcProfile(15), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			t.Fatalf("slot %d differs between runs", i)
		}
	}
}

func TestGenerateCandidates_InvalidDuration(t *testing.T) {
	_, err := GenerateCandidates(utcProfile(45), time.Now())
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestGenerateCandidates_InvalidTimezone(t *testing.T) {
	profile := &Profile{Timezone: "Mars/Olympus_Mons", SlotDurationMinutes: 30}
	_, err := GenerateCandidates(profile, time.Now())
	if !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}
}

func TestGenerateCandidates_EmptyTimezoneDefaultsToUTC(t *testing.T) {
	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	profile := &Profile{Timezone: "", SlotDurationMinutes: 60}

	candidates, err := GenerateCandidates(profile, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !candidates[0].Start.Equal(ref) {
		t.Fatalf("expected UTC midnight start, got %s", candidates[0].Start)
	}
}
