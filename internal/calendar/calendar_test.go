package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/glowbook-hq/glowbook/internal/model"
)

type fakeSource struct {
	hours    model.WeeklyHours
	holidays map[string]*model.Holiday
}

func (f *fakeSource) BusinessHours(_ context.Context) (model.WeeklyHours, error) {
	return f.hours, nil
}

func (f *fakeSource) HolidayOn(_ context.Context, day time.Time) (*model.Holiday, error) {
	if f.holidays == nil {
		return nil, nil
	}
	return f.holidays[day.Format("2006-01-02")], nil
}

func weekdayHours(start, end int) model.WeeklyHours {
	var wh model.WeeklyHours
	for wd := time.Monday; wd <= time.Friday; wd++ {
		wh[wd] = &model.DayHours{StartMinute: start, EndMinute: end}
	}
	return wh
}

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestEffectiveHours_WeeklyHours(t *testing.T) {
	cal := New(&fakeSource{hours: weekdayHours(540, 1020)})

	win, err := cal.EffectiveHours(context.Background(), monday)
	if err != nil {
		t.Fatalf("EffectiveHours: %v", err)
	}
	if !win.Open {
		t.Fatal("expected open window on a weekday")
	}
	if !win.Start.Equal(monday.Add(9 * time.Hour)) {
		t.Fatalf("expected 09:00 start, got %s", win.Start.Format("15:04"))
	}
	if !win.End.Equal(monday.Add(17 * time.Hour)) {
		t.Fatalf("expected 17:00 end, got %s", win.End.Format("15:04"))
	}
}

func TestEffectiveHours_ClosedWeekday(t *testing.T) {
	cal := New(&fakeSource{hours: weekdayHours(540, 1020)})

	sunday := monday.AddDate(0, 0, -1)
	win, err := cal.EffectiveHours(context.Background(), sunday)
	if err != nil {
		t.Fatalf("EffectiveHours: %v", err)
	}
	if win.Open {
		t.Fatal("expected closed on sunday")
	}
}

func TestEffectiveHours_MissingConfigIsClosed(t *testing.T) {
	cal := New(&fakeSource{})

	win, err := cal.EffectiveHours(context.Background(), monday)
	if err != nil {
		t.Fatalf("EffectiveHours: %v", err)
	}
	if win.Open {
		t.Fatal("missing business hours must fail closed")
	}
}

func TestEffectiveHours_HolidayClosure(t *testing.T) {
	cal := New(&fakeSource{
		hours: weekdayHours(540, 1020),
		holidays: map[string]*model.Holiday{
			"2026-03-02": {Day: monday, Name: "Renovation day", Closed: true},
		},
	})

	win, err := cal.EffectiveHours(context.Background(), monday)
	if err != nil {
		t.Fatalf("EffectiveHours: %v", err)
	}
	if win.Open {
		t.Fatal("holiday closure must override weekly hours")
	}
}

func TestEffectiveHours_HolidayCustomHours(t *testing.T) {
	cal := New(&fakeSource{
		hours: weekdayHours(540, 1020),
		holidays: map[string]*model.Holiday{
			"2026-03-02": {Day: monday, Name: "Holiday eve", Hours: &model.DayHours{StartMinute: 600, EndMinute: 840}},
		},
	})

	win, err := cal.EffectiveHours(context.Background(), monday)
	if err != nil {
		t.Fatalf("EffectiveHours: %v", err)
	}
	if !win.Open {
		t.Fatal("expected custom holiday hours to keep the day open")
	}
	if !win.Start.Equal(monday.Add(10*time.Hour)) || !win.End.Equal(monday.Add(14*time.Hour)) {
		t.Fatalf("expected 10:00-14:00, got %s-%s", win.Start.Format("15:04"), win.End.Format("15:04"))
	}
}

func TestStaffWindow_PersonalSchedule(t *testing.T) {
	cal := New(&fakeSource{hours: weekdayHours(540, 1020)})
	staff := model.Staff{
		ID:     "staff-1",
		Active: true,
		Schedule: map[time.Weekday]model.StaffDay{
			time.Monday: {Working: true, StartMinute: 720, EndMinute: 1080},
		},
	}

	win, err := cal.StaffWindow(context.Background(), staff, monday)
	if err != nil {
		t.Fatalf("StaffWindow: %v", err)
	}
	if !win.Open {
		t.Fatal("expected staff window open")
	}
	if !win.Start.Equal(monday.Add(12 * time.Hour)) {
		t.Fatalf("expected personal 12:00 start, got %s", win.Start.Format("15:04"))
	}
}

func TestStaffWindow_DayOffEntry(t *testing.T) {
	cal := New(&fakeSource{hours: weekdayHours(540, 1020)})
	staff := model.Staff{
		ID:     "staff-1",
		Active: true,
		Schedule: map[time.Weekday]model.StaffDay{
			time.Monday: {Working: false},
		},
	}

	win, err := cal.StaffWindow(context.Background(), staff, monday)
	if err != nil {
		t.Fatalf("StaffWindow: %v", err)
	}
	if win.Open {
		t.Fatal("explicit day-off entry must make staff unavailable")
	}
}

func TestStaffWindow_NoScheduleDefersToBusiness(t *testing.T) {
	cal := New(&fakeSource{hours: weekdayHours(540, 1020)})
	staff := model.Staff{ID: "staff-1", Active: true}

	win, err := cal.StaffWindow(context.Background(), staff, monday)
	if err != nil {
		t.Fatalf("StaffWindow: %v", err)
	}
	if !win.Open || !win.Start.Equal(monday.Add(9*time.Hour)) {
		t.Fatal("staff without a schedule must inherit business hours")
	}
}

func TestStaffWindow_HolidayClosureBeatsSchedule(t *testing.T) {
	cal := New(&fakeSource{
		hours: weekdayHours(540, 1020),
		holidays: map[string]*model.Holiday{
			"2026-03-02": {Day: monday, Closed: true},
		},
	})
	staff := model.Staff{
		ID:     "staff-1",
		Active: true,
		Schedule: map[time.Weekday]model.StaffDay{
			time.Monday: {Working: true, StartMinute: 540, EndMinute: 1020},
		},
	}

	win, err := cal.StaffWindow(context.Background(), staff, monday)
	if err != nil {
		t.Fatalf("StaffWindow: %v", err)
	}
	if win.Open {
		t.Fatal("business closure must win over the personal schedule")
	}
}

func TestStaffWindow_InactiveStaff(t *testing.T) {
	cal := New(&fakeSource{hours: weekdayHours(540, 1020)})
	staff := model.Staff{ID: "staff-1", Active: false}

	win, err := cal.StaffWindow(context.Background(), staff, monday)
	if err != nil {
		t.Fatalf("StaffWindow: %v", err)
	}
	if win.Open {
		t.Fatal("inactive staff must be unavailable")
	}
}
