package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/glowbook-hq/glowbook/internal/model"
	"github.com/glowbook-hq/glowbook/internal/outbox"
	"github.com/glowbook-hq/glowbook/libs/db"
)

// AppointmentRepository persists appointments. The appointments table carries
// an exclusion constraint over (staff domain, [start_at, blocked_until)) for
// active rows; it is the final word on double booking.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id::text, service_id::text, COALESCE(staff_id::text, ''), staff_requested,
	customer_name, customer_email, customer_phone,
	day, start_at, duration_minutes, blocked_until,
	status, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ServiceID,
		&appt.StaffID,
		&appt.StaffRequested,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.Day,
		&appt.StartAt,
		&appt.DurationMinutes,
		&appt.BlockedUntil,
		&appt.Status,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func (r *AppointmentRepository) ListActiveForDay(ctx context.Context, day time.Time, staffID string) ([]model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE day = $1 AND status IN ('pending', 'confirmed')`
	args := []any{day}
	if staffID != "" {
		query += ` AND staff_id::text = $2`
		args = append(args, staffID)
	}
	query += ` ORDER BY start_at ASC`
	return r.list(ctx, query, args...)
}

func (r *AppointmentRepository) ListForDay(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE day = $1
		ORDER BY start_at ASC
	`, day)
}

func (r *AppointmentRepository) list(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// InsertIfFree inserts the appointment, the booked event and the idempotency
// record in one transaction. A replayed idempotency key returns the stored
// appointment without inserting; an overlap with an active appointment in the
// same staff domain returns model.ErrSlotTaken.
func (r *AppointmentRepository) InsertIfFree(ctx context.Context, appt model.Appointment, idemKey string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if idemKey != "" {
		storedID, seen, err := r.lockIdempotencyKey(ctx, tx, idemKey)
		if err != nil {
			return model.Appointment{}, err
		}
		if seen && storedID != "" {
			stored, err := r.getForUpdate(ctx, tx, storedID)
			if err != nil {
				return model.Appointment{}, err
			}
			return stored, tx.Commit(ctx)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(id, service_id, staff_id, staff_requested,
			 customer_name, customer_email, customer_phone,
			 day, start_at, duration_minutes, blocked_until, status, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, appt.ID, appt.ServiceID, appt.StaffID, appt.StaffRequested,
		appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone,
		appt.Day, appt.StartAt, appt.DurationMinutes, appt.BlockedUntil, appt.Status, appt.CreatedAt)
	if IsConflict(err) {
		return model.Appointment{}, model.ErrSlotTaken
	}
	if err != nil {
		return model.Appointment{}, err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.AppointmentBooked(appt)); err != nil {
		return model.Appointment{}, err
	}

	if idemKey != "" {
		_, err = tx.Exec(ctx, `
			UPDATE booking_idempotency_keys
			SET appointment_id = $2, updated_at = now()
			WHERE idempotency_key = $1
		`, idemKey, appt.ID)
		if err != nil {
			return model.Appointment{}, err
		}
	}

	return appt, tx.Commit(ctx)
}

// FindByIdempotencyKey resolves a finalized idempotency key to its stored
// appointment. Keys never seen, or claimed but not yet finalized, report
// model.ErrNotFound; the insert path then settles the race inside its own
// transaction.
func (r *AppointmentRepository) FindByIdempotencyKey(ctx context.Context, key string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = (
			SELECT appointment_id
			FROM booking_idempotency_keys
			WHERE idempotency_key = $1
		)
	`, key))
	if IsNotFound(err) {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, err
}

// lockIdempotencyKey claims the key row for this transaction. It returns the
// previously stored appointment id when the key was already finalized.
func (r *AppointmentRepository) lockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (string, bool, error) {
	id, err := r.selectIdempotencyForUpdate(ctx, tx, key)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key)
	if err != nil {
		return "", false, err
	}

	id, err = r.selectIdempotencyForUpdate(ctx, tx, key)
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

func (r *AppointmentRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, key string) (string, error) {
	var appointmentID string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(&appointmentID)
	return appointmentID, err
}

func (r *AppointmentRepository) getForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id::text = $1
		FOR UPDATE
	`, id))
}

// Cancel marks the appointment cancelled and emits the cancelled event.
// Cancelling an already cancelled appointment returns the stored record
// without a second event.
func (r *AppointmentRepository) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := r.getForUpdate(ctx, tx, id)
	if IsNotFound(err) {
		return model.Appointment{}, model.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, tx.Commit(ctx)
	}

	var cancelledAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $2
		WHERE id::text = $1
		RETURNING cancelled_at
	`, id, reason).Scan(&cancelledAt)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt
	appt.CancelReason = reason

	if err := r.outbox.Insert(ctx, tx, outbox.AppointmentCancelled(appt)); err != nil {
		return model.Appointment{}, err
	}
	return appt, tx.Commit(ctx)
}
