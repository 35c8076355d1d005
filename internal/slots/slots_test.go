package slots

import (
	"testing"
	"time"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestCandidates_DurationMustFit(t *testing.T) {
	// 60-minute service in a 09:00-10:30 window with a 30-minute step:
	// 09:00 and 09:30 fit, 10:00 does not (10:00+60 > 10:30).
	got := Candidates(at(9, 0), at(10, 30), 60*time.Minute, 30*time.Minute)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if !got[0].Equal(at(9, 0)) || !got[1].Equal(at(9, 30)) {
		t.Fatalf("expected 09:00 and 09:30, got %s and %s", got[0].Format("15:04"), got[1].Format("15:04"))
	}
}

func TestCandidates_ExactFit(t *testing.T) {
	got := Candidates(at(16, 30), at(17, 0), 30*time.Minute, 30*time.Minute)
	if len(got) != 1 {
		t.Fatalf("expected the exact-fit candidate, got %d", len(got))
	}
}

func TestCandidates_EmptyOrInvalidWindow(t *testing.T) {
	if got := Candidates(at(9, 0), at(9, 0), 30*time.Minute, 15*time.Minute); got != nil {
		t.Fatalf("expected nil for empty window, got %v", got)
	}
	if got := Candidates(at(10, 0), at(9, 0), 30*time.Minute, 15*time.Minute); got != nil {
		t.Fatalf("expected nil for inverted window, got %v", got)
	}
	if got := Candidates(at(9, 0), at(17, 0), 0, 15*time.Minute); got != nil {
		t.Fatalf("expected nil for zero duration, got %v", got)
	}
}

func TestCandidates_Deterministic(t *testing.T) {
	a := Candidates(at(9, 0), at(17, 0), 30*time.Minute, 15*time.Minute)
	b := Candidates(at(9, 0), at(17, 0), 30*time.Minute, 15*time.Minute)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("candidate %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestMark_OverlapIsByInterval(t *testing.T) {
	// Existing booking 10:00-11:00. A 30-minute candidate at 10:30 overlaps
	// even though the start times differ.
	busy := []Interval{{Start: at(10, 0), End: at(11, 0)}}
	cands := []time.Time{at(9, 30), at(10, 30), at(11, 0)}

	marked := Mark(cands, 30*time.Minute, 0, busy, day)
	if !marked[0].Available {
		t.Fatal("09:30+30 ends exactly at 10:00 and should stay available")
	}
	if marked[1].Available {
		t.Fatal("10:30 overlaps the 10:00-11:00 booking")
	}
	if !marked[2].Available {
		t.Fatal("11:00 starts exactly at the booking end and should be available")
	}
}

func TestMark_BufferBlocksTrailingSlot(t *testing.T) {
	// Existing appointment 10:00-11:00 with a 15-minute buffer occupies
	// [10:00, 11:15): candidate 11:00 is taken, 11:15 is free.
	busy := []Interval{{Start: at(10, 0), End: at(11, 15)}}

	marked := Mark([]time.Time{at(11, 0), at(11, 15)}, 30*time.Minute, 15*time.Minute, busy, day)
	if marked[0].Available {
		t.Fatal("11:00 must be blocked while the buffer runs until 11:15")
	}
	if !marked[1].Available {
		t.Fatal("11:15 must be available once the buffer has elapsed")
	}
}

func TestMark_BufferProtectsExistingBooking(t *testing.T) {
	// Candidate 09:15 with 30m duration and 15m buffer reserves until 10:00;
	// it may not butt up against the 09:50 booking.
	busy := []Interval{{Start: at(9, 50), End: at(10, 35)}}

	marked := Mark([]time.Time{at(9, 0), at(9, 15)}, 30*time.Minute, 15*time.Minute, busy, day)
	if !marked[0].Available {
		t.Fatal("09:00 reserves until 09:45 and should be available")
	}
	if marked[1].Available {
		t.Fatal("09:15 reserves until 10:00 and collides with the 09:50 booking")
	}
}

func TestMark_PastCandidatesUnavailable(t *testing.T) {
	now := at(9, 31)
	cands := []time.Time{at(9, 0), at(9, 30), at(9, 45)}

	marked := Mark(cands, 15*time.Minute, 0, nil, now)
	if marked[0].Available || marked[1].Available {
		t.Fatal("slots starting before now must be unavailable")
	}
	if !marked[2].Available {
		t.Fatal("future slot must remain available")
	}
}

func TestMark_OverlapTouchingBusyEdge(t *testing.T) {
	busy := []Interval{{Start: at(9, 15), End: at(9, 45)}}

	marked := Mark([]time.Time{at(9, 0), at(9, 45)}, 15*time.Minute, 0, busy, day)
	if !marked[0].Available {
		t.Fatal("09:00-09:15 touches the busy start and should be available")
	}
	if !marked[1].Available {
		t.Fatal("09:45 starts at the busy end and should be available")
	}
}

func TestFree_CommitRecheck(t *testing.T) {
	busy := []Interval{{Start: at(10, 0), End: at(11, 0)}}

	if Free(at(10, 30), 30*time.Minute, 0, busy, day) {
		t.Fatal("overlapping interval must not be free")
	}
	if !Free(at(11, 0), 30*time.Minute, 0, busy, day) {
		t.Fatal("interval starting at the busy end must be free")
	}
	if Free(at(9, 0), 30*time.Minute, 0, nil, at(9, 1)) {
		t.Fatal("a start in the past must never be free")
	}
}
