package storage

import (
	"testing"
	"time"
)

func TestInvalidationKeys_HolidayMatchesReadKey(t *testing.T) {
	day := time.Date(2026, time.December, 25, 0, 0, 0, 0, time.UTC)
	readKey := keyHolidayPrefix + day.Format("2006-01-02")

	keys, flush := invalidationKeys("holiday", "2026-12-25")
	if flush {
		t.Fatal("expected targeted invalidation, got flush")
	}
	if len(keys) != 1 || keys[0] != readKey {
		t.Fatalf("keys = %v, want [%s]", keys, readKey)
	}
}

func TestInvalidationKeys_HolidayWithBadIDFlushes(t *testing.T) {
	for _, id := range []string{"", "6a2f0c1e-9d4b-4f7a-8c3d-2e1b0a9f8e7d", "25-12-2026"} {
		if _, flush := invalidationKeys("holiday", id); !flush {
			t.Fatalf("id %q: expected flush", id)
		}
	}
}

func TestInvalidationKeys_ByEntity(t *testing.T) {
	cases := []struct {
		entity string
		id     string
		want   []string
	}{
		{"service", "abc", []string{keyServicePrefix + "abc", keyActiveStaff}},
		{"staff", "abc", []string{keyStaffPrefix + "abc", keyActiveStaff}},
		{"business_hours", "", []string{keyHours}},
	}
	for _, tc := range cases {
		keys, flush := invalidationKeys(tc.entity, tc.id)
		if flush {
			t.Fatalf("%s: unexpected flush", tc.entity)
		}
		if len(keys) != len(tc.want) {
			t.Fatalf("%s: keys = %v, want %v", tc.entity, keys, tc.want)
		}
		for i := range keys {
			if keys[i] != tc.want[i] {
				t.Fatalf("%s: keys = %v, want %v", tc.entity, keys, tc.want)
			}
		}
	}

	if _, flush := invalidationKeys("unknown", "x"); !flush {
		t.Fatal("unknown entity: expected flush")
	}
}
