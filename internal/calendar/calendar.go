package calendar

import (
	"context"
	"time"

	"github.com/glowbook-hq/glowbook/internal/model"
)

// HoursSource provides the configuration a calendar needs to resolve a date.
// Reads must reflect admin writes promptly; implementations may cache but only
// with invalidation (see storage.CachedDirectory).
type HoursSource interface {
	BusinessHours(ctx context.Context) (model.WeeklyHours, error)
	HolidayOn(ctx context.Context, day time.Time) (*model.Holiday, error)
}

// Window is the resolved interval during which bookings may run on a date.
type Window struct {
	Open  bool
	Start time.Time
	End   time.Time
}

type Calendar struct {
	src HoursSource
}

func New(src HoursSource) *Calendar {
	return &Calendar{src: src}
}

// EffectiveHours resolves the business open window for a calendar day.
// Precedence: holiday closure > holiday custom hours > weekly hours.
// Missing weekly configuration means closed, never open.
func (c *Calendar) EffectiveHours(ctx context.Context, day time.Time) (Window, error) {
	holiday, err := c.src.HolidayOn(ctx, day)
	if err != nil {
		return Window{}, err
	}
	if holiday != nil {
		if holiday.Closed {
			return Window{}, nil
		}
		if holiday.Hours != nil {
			return windowOn(day, holiday.Hours.StartMinute, holiday.Hours.EndMinute), nil
		}
	}

	hours, err := c.src.BusinessHours(ctx)
	if err != nil {
		return Window{}, err
	}
	entry := hours[day.Weekday()]
	if entry == nil {
		return Window{}, nil
	}
	return windowOn(day, entry.StartMinute, entry.EndMinute), nil
}

// StaffWindow resolves one staff member's working window for a calendar day.
// A holiday always wins over the personal schedule: full closure makes the
// staff member unavailable, custom holiday hours replace their window. A staff
// member without an entry for the weekday defers to business hours.
func (c *Calendar) StaffWindow(ctx context.Context, staff model.Staff, day time.Time) (Window, error) {
	if !staff.Active {
		return Window{}, nil
	}

	holiday, err := c.src.HolidayOn(ctx, day)
	if err != nil {
		return Window{}, err
	}
	if holiday != nil {
		if holiday.Closed {
			return Window{}, nil
		}
		if holiday.Hours != nil {
			return windowOn(day, holiday.Hours.StartMinute, holiday.Hours.EndMinute), nil
		}
	}

	if entry, ok := staff.Schedule[day.Weekday()]; ok {
		if !entry.Working {
			return Window{}, nil
		}
		return windowOn(day, entry.StartMinute, entry.EndMinute), nil
	}

	return c.EffectiveHours(ctx, day)
}

func windowOn(day time.Time, startMinute, endMinute int) Window {
	if endMinute <= startMinute {
		return Window{}
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Window{
		Open:  true,
		Start: midnight.Add(time.Duration(startMinute) * time.Minute),
		End:   midnight.Add(time.Duration(endMinute) * time.Minute),
	}
}
