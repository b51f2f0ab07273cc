package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// storeErr sorts a driver error into the domain taxonomy. Anything that is not
// a server-side Postgres error is treated as a connectivity failure.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &ConnectivityError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Helpers

const requestColumns = `id, patient_name, phone, age, email, created_at, requested_at, rejected_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(
		&r.ID,
		&r.PatientName,
		&r.Phone,
		&r.Age,
		&r.Email,
		&r.CreatedAt,
		&r.RequestedAt,
		&r.RejectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &r, nil
}

const appointmentColumns = `id, patient_id, doctor_id, request_id, description, scheduled_at, status, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.RequestID,
		&a.Description,
		&a.ScheduledAt,
		&a.Status,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const patientColumns = `id, name, surname, age, gender, phone, email, address, birthdate, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Surname,
		&p.Age,
		&p.Gender,
		&p.Phone,
		&p.Email,
		&p.Address,
		&p.Birthdate,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Requests

func (r *PgRepository) ListRequests(ctx context.Context) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM appointment_requests
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, storeErr("list requests", err)
	}
	out, err := collect(rows, scanRequest)
	if err != nil {
		return nil, storeErr("list requests", err)
	}
	return out, nil
}

func (r *PgRepository) GetRequestByID(ctx context.Context, id int64) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM appointment_requests
		WHERE id = $1
	`, id)
	req, err := scanRequest(row)
	if err != nil && !errors.Is(err, ErrRequestNotFound) {
		return nil, storeErr("get request", err)
	}
	return req, err
}

func (r *PgRepository) CreateRequest(ctx context.Context, req Request) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointment_requests (patient_name, phone, age, email, created_at, requested_at)
		VALUES ($1, $2, $3, $4, now(), $5)
		RETURNING `+requestColumns,
		req.PatientName, req.Phone, req.Age, req.Email, req.RequestedAt)

	created, err := scanRequest(row)
	if err != nil {
		return nil, storeErr("create request", err)
	}
	return created, nil
}

// MarkRequestRejected stamps rejected_at once; a second call finds no row.
func (r *PgRepository) MarkRequestRejected(ctx context.Context, id int64, at time.Time) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointment_requests
		SET rejected_at = $2
		WHERE id = $1
		  AND rejected_at IS NULL
		RETURNING `+requestColumns,
		id, at)

	req, err := scanRequest(row)
	if err != nil && !errors.Is(err, ErrRequestNotFound) {
		return nil, storeErr("reject request", err)
	}
	return req, err
}

// Appointments

func (r *PgRepository) ListAppointments(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY scheduled_at
	`)
	if err != nil {
		return nil, storeErr("list appointments", err)
	}
	out, err := collect(rows, scanAppointment)
	if err != nil {
		return nil, storeErr("list appointments", err)
	}
	return out, nil
}

func (r *PgRepository) ListAppointmentsForRequest(ctx context.Context, requestID int64, tag string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE request_id = $1
		   OR (request_id IS NULL AND description = $2)
		ORDER BY id
	`, requestID, tag)
	if err != nil {
		return nil, storeErr("list request appointments", err)
	}
	out, err := collect(rows, scanAppointment)
	if err != nil {
		return nil, storeErr("list request appointments", err)
	}
	return out, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, request_id, description, scheduled_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING `+appointmentColumns,
		a.PatientID, a.DoctorID, a.RequestID, a.Description, a.ScheduledAt, a.Status)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAppointment
		}
		return nil, storeErr("create appointment", err)
	}
	return created, nil
}

// Patients

func (r *PgRepository) ListPatientsByContact(ctx context.Context, email, phone string) ([]Patient, error) {
	if email == "" && phone == "" {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE ($1 <> '' AND lower(email) = lower($1))
		   OR ($2 <> '' AND phone = $2)
		ORDER BY id
	`, email, phone)
	if err != nil {
		return nil, storeErr("find patients", err)
	}
	out, err := collect(rows, scanPatient)
	if err != nil {
		return nil, storeErr("find patients", err)
	}
	return out, nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (name, surname, age, gender, phone, email, address, birthdate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING `+patientColumns,
		p.Name, p.Surname, p.Age, p.Gender, p.Phone, p.Email, p.Address, p.Birthdate)

	created, err := scanPatient(row)
	if err != nil {
		return nil, storeErr("create patient", err)
	}
	return created, nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, request_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.RequestID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return storeErr("insert event log", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
