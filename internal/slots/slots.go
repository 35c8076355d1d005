package slots

import "time"

// Interval is a half-open busy interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a candidate appointment start time with its availability verdict.
type Slot struct {
	Start     time.Time
	Available bool
}

// Candidates returns the start times at step granularity, beginning at
// windowStart, for which a booking of length duration fits entirely within
// [windowStart, windowEnd). Deterministic given the same inputs.
func Candidates(windowStart, windowEnd time.Time, duration, step time.Duration) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var out []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// Mark flags each candidate against the busy intervals. Busy intervals are
// expected to already include any trailing buffer of the existing booking
// ([start, blockedUntil)); the candidate's own interval is extended by buffer
// on the end side so that a slot which would violate the rest time before an
// existing booking is reported taken rather than failing at commit.
//
// Candidates starting before now are never available: booking into the past
// is not valid. All times must share one location.
func Mark(candidates []time.Time, duration, buffer time.Duration, busy []Interval, now time.Time) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, t := range candidates {
		available := !t.Before(now) && !overlapsAny(t, t.Add(duration).Add(buffer), busy)
		out = append(out, Slot{Start: t, Available: available})
	}
	return out
}

// Free reports whether a single interval [start, start+duration+buffer) is
// clear of every busy interval. Used for the commit-time re-check.
func Free(start time.Time, duration, buffer time.Duration, busy []Interval, now time.Time) bool {
	if start.Before(now) {
		return false
	}
	return !overlapsAny(start, start.Add(duration).Add(buffer), busy)
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
