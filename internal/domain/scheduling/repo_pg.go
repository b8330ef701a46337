package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/opd/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

const doctorCols = `id, name, specialty, active, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := r.scanDoctor(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	conn := connFor(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM doctor WHERE active`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `SELECT `+doctorCols+` FROM doctor WHERE active ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

// Times are stored as entered ("09:00 AM"); they are parsed here so the rest
// of the service only sees TimeOfDay values.
func (r *availabilityRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityBlock, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT id, doctor_id, COALESCE(day_of_week, ''), specific_date, start_time, end_time,
			COALESCE(location, ''), is_available
		FROM availability_block
		WHERE doctor_id = $1
		ORDER BY specific_date NULLS LAST, start_time`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []AvailabilityBlock
	for rows.Next() {
		var (
			b          AvailabilityBlock
			start, end string
		)
		if err := rows.Scan(&b.ID, &b.DoctorID, &b.DayOfWeek, &b.SpecificDate, &start, &end,
			&b.Location, &b.IsAvailable); err != nil {
			return nil, err
		}
		if b.StartTime, err = ParseTimeOfDay(start); err != nil {
			return nil, fmt.Errorf("availability block %s start_time: %w", b.ID, err)
		}
		if b.EndTime, err = ParseTimeOfDay(end); err != nil {
			return nil, fmt.Errorf("availability block %s end_time: %w", b.ID, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) ListByDate(ctx context.Context, date time.Time) ([]Booking, error) {
	conn := connFor(ctx, r.pool)
	day := DateOnly(date)

	current, err := r.query(ctx, conn, SourceCurrent, `
		SELECT id::text, doctor_id, COALESCE(department, ''), COALESCE(patient_name, ''),
			appointment_date, time_range, status
		FROM appointment
		WHERE appointment_date = $1
		ORDER BY created_at ASC`, day)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	legacy, err := r.query(ctx, conn, SourceLegacy, `
		SELECT id::text, doctor_id, COALESCE(department, ''), COALESCE(patient_name, ''),
			appointment_date, appointment_time, status
		FROM legacy_appointment
		WHERE appointment_date = $1
		ORDER BY created_at ASC`, day)
	if err != nil {
		return nil, fmt.Errorf("list legacy appointments: %w", err)
	}

	return append(current, legacy...), nil
}

func (r *bookingRepoPG) query(ctx context.Context, conn queryable, source BookingSource, sql string, day time.Time) ([]Booking, error) {
	rows, err := conn.Query(ctx, sql, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Booking
	for rows.Next() {
		b := Booking{Source: source}
		if err := rows.Scan(&b.ID, &b.DoctorID, &b.Department, &b.PatientName,
			&b.Date, &b.TimeRange, &b.Status); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
