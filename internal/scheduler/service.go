// Package scheduler computes bookable slots and commits appointments. It is
// the only writer of appointments; handlers and consumers go through it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glowbook-hq/glowbook/internal/calendar"
	"github.com/glowbook-hq/glowbook/internal/crm"
	"github.com/glowbook-hq/glowbook/internal/model"
	"github.com/glowbook-hq/glowbook/internal/slots"
)

type Config struct {
	// StepMinutes is the slot grid granularity.
	StepMinutes int
	// BufferMinutes is the rest time appended after every appointment.
	BufferMinutes int
	// MaxAdvanceDays bounds how far ahead bookings are accepted.
	MaxAdvanceDays int
	// AutoConfirm creates appointments as confirmed instead of pending.
	AutoConfirm bool
}

func (c Config) withDefaults() Config {
	if c.StepMinutes <= 0 {
		c.StepMinutes = 15
	}
	if c.MaxAdvanceDays <= 0 {
		c.MaxAdvanceDays = 90
	}
	if c.BufferMinutes < 0 {
		c.BufferMinutes = 0
	}
	return c
}

// Directory reads the business configuration: catalog, staff and hours.
// Service and Staff return model.ErrNotFound for unknown ids.
type Directory interface {
	Service(ctx context.Context, id string) (model.Service, error)
	Staff(ctx context.Context, id string) (model.Staff, error)
	ActiveStaff(ctx context.Context) ([]model.Staff, error)
	BusinessHours(ctx context.Context) (model.WeeklyHours, error)
	HolidayOn(ctx context.Context, day time.Time) (*model.Holiday, error)
}

// AppointmentStore persists appointments. InsertIfFree must reject an insert
// whose [StartAt, BlockedUntil) interval overlaps an active appointment in the
// same staff domain with model.ErrSlotTaken, atomically with the insert.
type AppointmentStore interface {
	// ListActiveForDay returns slot-holding appointments for the day,
	// restricted to one staff member when staffID is non-empty.
	ListActiveForDay(ctx context.Context, day time.Time, staffID string) ([]model.Appointment, error)
	// ListForDay returns every appointment for the day regardless of status.
	ListForDay(ctx context.Context, day time.Time) ([]model.Appointment, error)
	// InsertIfFree inserts the appointment unless the slot is taken. When
	// idemKey is non-empty and was seen before, the previously stored
	// appointment is returned instead of inserting a duplicate.
	InsertIfFree(ctx context.Context, appt model.Appointment, idemKey string) (model.Appointment, error)
	// FindByIdempotencyKey returns the appointment a finalized key maps to,
	// model.ErrNotFound for an unseen key.
	FindByIdempotencyKey(ctx context.Context, key string) (model.Appointment, error)
	// Cancel marks the appointment cancelled. Cancelling an already cancelled
	// appointment is a no-op returning the stored record.
	Cancel(ctx context.Context, id, reason string) (model.Appointment, error)
}

// Slot is one presentable entry of a day's availability grid.
type Slot struct {
	Time      string `json:"time"` // "HH:MM" business-local
	Available bool   `json:"available"`
}

type SlotsRequest struct {
	ServiceID string
	StaffID   string // optional; empty means any qualified staff member
	Day       time.Time
}

type BookRequest struct {
	ServiceID      string
	StaffID        string // optional
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	StartAt        time.Time // business-local wall clock, UTC location
	IdempotencyKey string
}

type Service struct {
	cfg    Config
	dir    Directory
	store  AppointmentStore
	cal    *calendar.Calendar
	crm    crm.Provider
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config, dir Directory, store AppointmentStore, crmProvider crm.Provider, logger *slog.Logger) *Service {
	if crmProvider == nil {
		crmProvider = crm.NoopProvider{}
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		dir:    dir,
		store:  store,
		cal:    calendar.New(dir),
		crm:    crmProvider,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock. The clock must return business-local wall
// clock time in the UTC location, matching stored appointment times.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// WallClock returns a clock reading business-local wall time in loc, rebased
// into the UTC location so it compares directly with stored values.
func WallClock(loc *time.Location) func() time.Time {
	return func() time.Time {
		t := time.Now().In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	}
}

func (s *Service) step() time.Duration {
	return time.Duration(s.cfg.StepMinutes) * time.Minute
}

func (s *Service) buffer() time.Duration {
	return time.Duration(s.cfg.BufferMinutes) * time.Minute
}

// AvailableSlots computes the slot grid for one service on one day. Days in
// the past or beyond the booking horizon yield an empty grid; closed days
// yield an empty grid. Unknown or inactive services and staff are rejected.
func (s *Service) AvailableSlots(ctx context.Context, req SlotsRequest) ([]Slot, error) {
	svc, err := s.lookupService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	day := midnightOf(req.Day)
	now := s.now()
	if day.Before(midnightOf(now)) || s.beyondHorizon(day, now) {
		return []Slot{}, nil
	}
	duration := time.Duration(svc.DurationMinutes) * time.Minute

	if req.StaffID != "" {
		st, err := s.lookupStaff(ctx, req.StaffID, svc.ID)
		if err != nil {
			return nil, err
		}
		return s.staffSlots(ctx, st, day, duration, now)
	}

	qualified, err := s.qualifiedStaff(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	if len(qualified) == 0 {
		// No staff records: the whole business is one conflict domain.
		win, err := s.cal.EffectiveHours(ctx, day)
		if err != nil {
			return nil, err
		}
		if !win.Open {
			return []Slot{}, nil
		}
		busy, err := s.busyIntervals(ctx, day, "")
		if err != nil {
			return nil, err
		}
		marked := slots.Mark(slots.Candidates(win.Start, win.End, duration, s.step()), duration, s.buffer(), busy, now)
		return present(marked), nil
	}

	// Any-staff view: a slot is available when at least one qualified staff
	// member can take it.
	merged := map[time.Time]bool{}
	for _, st := range qualified {
		marked, err := s.staffMarked(ctx, st, day, duration, now)
		if err != nil {
			return nil, err
		}
		for _, sl := range marked {
			merged[sl.Start] = merged[sl.Start] || sl.Available
		}
	}
	starts := make([]time.Time, 0, len(merged))
	for t := range merged {
		starts = append(starts, t)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	out := make([]Slot, 0, len(starts))
	for _, t := range starts {
		out = append(out, Slot{Time: t.Format("15:04"), Available: merged[t]})
	}
	return out, nil
}

func (s *Service) staffSlots(ctx context.Context, st model.Staff, day time.Time, duration time.Duration, now time.Time) ([]Slot, error) {
	marked, err := s.staffMarked(ctx, st, day, duration, now)
	if err != nil {
		return nil, err
	}
	return present(marked), nil
}

func (s *Service) staffMarked(ctx context.Context, st model.Staff, day time.Time, duration time.Duration, now time.Time) ([]slots.Slot, error) {
	win, err := s.cal.StaffWindow(ctx, st, day)
	if err != nil {
		return nil, err
	}
	if !win.Open {
		return nil, nil
	}
	busy, err := s.busyIntervals(ctx, day, st.ID)
	if err != nil {
		return nil, err
	}
	return slots.Mark(slots.Candidates(win.Start, win.End, duration, s.step()), duration, s.buffer(), busy, now), nil
}

// BookAppointment validates the request, picks a staff member when none was
// requested, and commits the appointment. The pre-check against loaded
// appointments gives early conflict answers; the store's overlap constraint is
// the authority under concurrency.
func (s *Service) BookAppointment(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if err := validateCustomer(req); err != nil {
		return model.Appointment{}, err
	}

	// A retried request must resolve to its original outcome, so the replay
	// lookup runs before any conflict check: on replay the original booking
	// itself occupies the slot and a pre-check would wrongly report conflict.
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		stored, err := s.store.FindByIdempotencyKey(ctx, key)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.Appointment{}, err
		}
	}

	svc, err := s.lookupService(ctx, req.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}

	var requested *model.Staff
	if req.StaffID != "" {
		st, err := s.lookupStaff(ctx, req.StaffID, svc.ID)
		if err != nil {
			return model.Appointment{}, err
		}
		requested = &st
	}

	now := s.now()
	start := req.StartAt
	day := midnightOf(start)
	if start.Before(now) {
		return model.Appointment{}, validationErr("start_in_past", "appointment start is in the past")
	}
	if s.beyondHorizon(day, now) {
		return model.Appointment{}, validationErr("beyond_horizon",
			fmt.Sprintf("appointments can be booked at most %d days ahead", s.cfg.MaxAdvanceDays))
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute
	appt := model.Appointment{
		ID:              uuid.NewString(),
		ServiceID:       svc.ID,
		StaffRequested:  requested != nil,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		Day:             day,
		StartAt:         start,
		DurationMinutes: svc.DurationMinutes,
		BlockedUntil:    start.Add(duration).Add(s.buffer()),
		Status:          s.initialStatus(),
		CreatedAt:       now,
	}

	var stored model.Appointment
	if requested != nil {
		if err := s.checkStaffSlot(ctx, *requested, day, start, duration, now); err != nil {
			return model.Appointment{}, err
		}
		appt.StaffID = requested.ID
		stored, err = s.store.InsertIfFree(ctx, appt, req.IdempotencyKey)
		if errors.Is(err, model.ErrSlotTaken) {
			return model.Appointment{}, conflictErr("slot no longer available")
		}
	} else {
		stored, err = s.bookAnyStaff(ctx, svc, appt, day, start, duration, now, req.IdempotencyKey)
	}
	if err != nil {
		return model.Appointment{}, err
	}

	s.pushContact(ctx, stored)
	return stored, nil
}

// bookAnyStaff assigns a concrete staff member at commit time, trying
// least-booked candidates first and moving on when one loses the race. With
// no staff records at all the appointment is committed unassigned against the
// business-wide domain.
func (s *Service) bookAnyStaff(ctx context.Context, svc model.Service, appt model.Appointment, day, start time.Time, duration time.Duration, now time.Time, idemKey string) (model.Appointment, error) {
	qualified, err := s.qualifiedStaff(ctx, svc.ID)
	if err != nil {
		return model.Appointment{}, err
	}

	if len(qualified) == 0 {
		win, err := s.cal.EffectiveHours(ctx, day)
		if err != nil {
			return model.Appointment{}, err
		}
		if err := s.checkWindow(win, start, duration); err != nil {
			return model.Appointment{}, err
		}
		busy, err := s.busyIntervals(ctx, day, "")
		if err != nil {
			return model.Appointment{}, err
		}
		if !slots.Free(start, duration, s.buffer(), busy, now) {
			return model.Appointment{}, conflictErr("slot no longer available")
		}
		stored, err := s.store.InsertIfFree(ctx, appt, idemKey)
		if errors.Is(err, model.ErrSlotTaken) {
			return model.Appointment{}, conflictErr("slot no longer available")
		}
		return stored, err
	}

	candidates, anyWindowFits, err := s.rankCandidates(ctx, qualified, day, start, duration, now)
	if err != nil {
		return model.Appointment{}, err
	}
	if !anyWindowFits {
		return model.Appointment{}, validationErr("outside_hours", "no staff works at the requested time")
	}
	if len(candidates) == 0 {
		return model.Appointment{}, conflictErr("no staff available for this slot")
	}
	for _, st := range candidates {
		attempt := appt
		attempt.StaffID = st.ID
		stored, err := s.store.InsertIfFree(ctx, attempt, idemKey)
		if errors.Is(err, model.ErrSlotTaken) {
			continue
		}
		return stored, err
	}
	return model.Appointment{}, conflictErr("slot no longer available")
}

// rankCandidates filters staff who can take the interval and orders them by
// how few active bookings they already hold that day, so walk-in load spreads.
// anyWindowFits distinguishes "nobody works then" from "everybody is booked".
func (s *Service) rankCandidates(ctx context.Context, staff []model.Staff, day, start time.Time, duration time.Duration, now time.Time) (candidates []model.Staff, anyWindowFits bool, err error) {
	type ranked struct {
		staff model.Staff
		load  int
	}
	var out []ranked
	for _, st := range staff {
		win, err := s.cal.StaffWindow(ctx, st, day)
		if err != nil {
			return nil, false, err
		}
		if !win.Open || start.Before(win.Start) || start.Add(duration).After(win.End) {
			continue
		}
		anyWindowFits = true
		existing, err := s.store.ListActiveForDay(ctx, day, st.ID)
		if err != nil {
			return nil, false, err
		}
		if !slots.Free(start, duration, s.buffer(), toIntervals(existing), now) {
			continue
		}
		out = append(out, ranked{staff: st, load: len(existing)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].load < out[j].load })
	for _, r := range out {
		candidates = append(candidates, r.staff)
	}
	return candidates, anyWindowFits, nil
}

func (s *Service) checkStaffSlot(ctx context.Context, st model.Staff, day, start time.Time, duration time.Duration, now time.Time) error {
	win, err := s.cal.StaffWindow(ctx, st, day)
	if err != nil {
		return err
	}
	if err := s.checkWindow(win, start, duration); err != nil {
		return err
	}
	busy, err := s.busyIntervals(ctx, day, st.ID)
	if err != nil {
		return err
	}
	if !slots.Free(start, duration, s.buffer(), busy, now) {
		return conflictErr("slot no longer available")
	}
	return nil
}

func (s *Service) checkWindow(win calendar.Window, start time.Time, duration time.Duration) error {
	if !win.Open {
		return validationErr("closed", "the business is closed on this day")
	}
	if start.Before(win.Start) || start.Add(duration).After(win.End) {
		return validationErr("outside_hours", "appointment does not fit within working hours")
	}
	return nil
}

// CancelAppointment releases the slot. Cancelling twice is not an error.
func (s *Service) CancelAppointment(ctx context.Context, id, reason string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, validationErr("missing_id", "appointment id is required")
	}
	appt, err := s.store.Cancel(ctx, id, reason)
	if errors.Is(err, model.ErrNotFound) {
		return model.Appointment{}, validationErr("not_found", "appointment not found")
	}
	return appt, err
}

// ListAppointments returns every appointment of a day, any status.
func (s *Service) ListAppointments(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	return s.store.ListForDay(ctx, midnightOf(day))
}

func (s *Service) lookupService(ctx context.Context, id string) (model.Service, error) {
	if strings.TrimSpace(id) == "" {
		return model.Service{}, validationErr("missing_service", "service id is required")
	}
	svc, err := s.dir.Service(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.Service{}, validationErr("unknown_service", "unknown service")
	}
	if err != nil {
		return model.Service{}, err
	}
	if !svc.Active {
		return model.Service{}, validationErr("inactive_service", "service is not bookable")
	}
	if svc.DurationMinutes <= 0 {
		return model.Service{}, validationErr("invalid_service", "service has no duration configured")
	}
	return svc, nil
}

func (s *Service) lookupStaff(ctx context.Context, id, serviceID string) (model.Staff, error) {
	st, err := s.dir.Staff(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.Staff{}, validationErr("unknown_staff", "unknown staff member")
	}
	if err != nil {
		return model.Staff{}, err
	}
	if !st.Active {
		return model.Staff{}, validationErr("inactive_staff", "staff member is not bookable")
	}
	if !st.CanPerform(serviceID) {
		return model.Staff{}, validationErr("staff_not_qualified", "staff member does not perform this service")
	}
	return st, nil
}

func (s *Service) qualifiedStaff(ctx context.Context, serviceID string) ([]model.Staff, error) {
	all, err := s.dir.ActiveStaff(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Staff
	for _, st := range all {
		if st.CanPerform(serviceID) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Service) busyIntervals(ctx context.Context, day time.Time, staffID string) ([]slots.Interval, error) {
	active, err := s.store.ListActiveForDay(ctx, day, staffID)
	if err != nil {
		return nil, err
	}
	return toIntervals(active), nil
}

func (s *Service) beyondHorizon(day, now time.Time) bool {
	return day.After(midnightOf(now).AddDate(0, 0, s.cfg.MaxAdvanceDays))
}

func (s *Service) initialStatus() model.AppointmentStatus {
	if s.cfg.AutoConfirm {
		return model.StatusConfirmed
	}
	return model.StatusPending
}

func (s *Service) pushContact(ctx context.Context, appt model.Appointment) {
	err := s.crm.PushContact(ctx, crm.Contact{
		Name:          appt.CustomerName,
		Email:         appt.CustomerEmail,
		Phone:         appt.CustomerPhone,
		ServiceID:     appt.ServiceID,
		AppointmentID: appt.ID,
		AppointmentAt: appt.StartAt,
	})
	if err != nil {
		s.logger.Warn("crm contact push failed", "appointment_id", appt.ID, "err", err)
	}
}

func validateCustomer(req BookRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" {
		return validationErr("missing_name", "customer name is required")
	}
	if strings.TrimSpace(req.CustomerEmail) == "" && strings.TrimSpace(req.CustomerPhone) == "" {
		return validationErr("missing_contact", "customer email or phone is required")
	}
	return nil
}

func toIntervals(appts []model.Appointment) []slots.Interval {
	out := make([]slots.Interval, 0, len(appts))
	for _, a := range appts {
		out = append(out, slots.Interval{Start: a.StartAt, End: a.BlockedUntil})
	}
	return out
}

func present(marked []slots.Slot) []Slot {
	out := make([]Slot, 0, len(marked))
	for _, sl := range marked {
		out = append(out, Slot{Time: sl.Start.Format("15:04"), Available: sl.Available})
	}
	return out
}

func midnightOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
