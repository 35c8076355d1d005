// Package storage is the Postgres persistence layer. It owns the SQL and the
// mapping between database errors and the domain sentinels.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/glowbook-hq/glowbook/internal/model"
	"github.com/glowbook-hq/glowbook/libs/db"
)

// Directory reads the business configuration tables: services, staff,
// business hours and holidays.
type Directory struct {
	pool *db.Pool
}

func NewDirectory(pool *db.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) Service(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	err := d.pool.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, is_active
		FROM services
		WHERE id::text = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, model.ErrNotFound
	}
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

func (d *Directory) Staff(ctx context.Context, id string) (model.Staff, error) {
	var st model.Staff
	err := d.pool.QueryRow(ctx, `
		SELECT id::text, name, is_active
		FROM staff
		WHERE id::text = $1
	`, id).Scan(&st.ID, &st.Name, &st.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Staff{}, model.ErrNotFound
	}
	if err != nil {
		return model.Staff{}, err
	}
	if err := d.loadStaffDetails(ctx, []*model.Staff{&st}); err != nil {
		return model.Staff{}, err
	}
	return st, nil
}

func (d *Directory) ActiveStaff(ctx context.Context) ([]model.Staff, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id::text, name, is_active
		FROM staff
		WHERE is_active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var st model.Staff
		if err := rows.Scan(&st.ID, &st.Name, &st.Active); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	refs := make([]*model.Staff, len(out))
	for i := range out {
		refs[i] = &out[i]
	}
	if err := d.loadStaffDetails(ctx, refs); err != nil {
		return nil, err
	}
	return out, nil
}

// loadStaffDetails fills the personal schedules and service restrictions for
// the given staff records.
func (d *Directory) loadStaffDetails(ctx context.Context, staff []*model.Staff) error {
	if len(staff) == 0 {
		return nil
	}
	byID := make(map[string]*model.Staff, len(staff))
	ids := make([]string, 0, len(staff))
	for _, st := range staff {
		byID[st.ID] = st
		ids = append(ids, st.ID)
	}

	rows, err := d.pool.Query(ctx, `
		SELECT staff_id::text, weekday, is_working, start_minute, end_minute
		FROM staff_schedule
		WHERE staff_id::text = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var staffID string
		var weekday int
		var entry model.StaffDay
		if err := rows.Scan(&staffID, &weekday, &entry.Working, &entry.StartMinute, &entry.EndMinute); err != nil {
			return err
		}
		st := byID[staffID]
		if st.Schedule == nil {
			st.Schedule = map[time.Weekday]model.StaffDay{}
		}
		st.Schedule[time.Weekday(weekday)] = entry
	}
	if rows.Err() != nil {
		return rows.Err()
	}

	svcRows, err := d.pool.Query(ctx, `
		SELECT staff_id::text, service_id::text
		FROM staff_services
		WHERE staff_id::text = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer svcRows.Close()
	for svcRows.Next() {
		var staffID, serviceID string
		if err := svcRows.Scan(&staffID, &serviceID); err != nil {
			return err
		}
		st := byID[staffID]
		st.ServiceIDs = append(st.ServiceIDs, serviceID)
	}
	return svcRows.Err()
}

func (d *Directory) BusinessHours(ctx context.Context) (model.WeeklyHours, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT weekday, is_open, start_minute, end_minute
		FROM business_hours
	`)
	if err != nil {
		return model.WeeklyHours{}, err
	}
	defer rows.Close()

	var hours model.WeeklyHours
	for rows.Next() {
		var weekday int
		var open bool
		var entry model.DayHours
		if err := rows.Scan(&weekday, &open, &entry.StartMinute, &entry.EndMinute); err != nil {
			return model.WeeklyHours{}, err
		}
		if open && weekday >= 0 && weekday < 7 {
			e := entry
			hours[weekday] = &e
		}
	}
	if rows.Err() != nil {
		return model.WeeklyHours{}, rows.Err()
	}
	return hours, nil
}

func (d *Directory) HolidayOn(ctx context.Context, day time.Time) (*model.Holiday, error) {
	var h model.Holiday
	var openMinute, closeMinute *int
	err := d.pool.QueryRow(ctx, `
		SELECT day, name, is_closed, open_minute, close_minute
		FROM holidays
		WHERE day = $1
	`, day).Scan(&h.Day, &h.Name, &h.Closed, &openMinute, &closeMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if openMinute != nil && closeMinute != nil {
		h.Hours = &model.DayHours{StartMinute: *openMinute, EndMinute: *closeMinute}
	}
	return &h, nil
}

// IsConflict reports whether the error is a Postgres exclusion constraint
// violation (the appointment overlap constraint).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
