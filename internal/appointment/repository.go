package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRequestNotFound      = errors.New("appointment request not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrDuplicateAppointment = errors.New("request already has an appointment")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	ReconcileStore

	// Requests, newest first
	ListRequests(ctx context.Context) ([]Request, error)
	GetRequestByID(ctx context.Context, id int64) (*Request, error)
	CreateRequest(ctx context.Context, r Request) (*Request, error)
	MarkRequestRejected(ctx context.Context, id int64, at time.Time) (*Request, error)

	ListAppointments(ctx context.Context) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// ReconcileStore is the part of the store the find-or-create flow touches.
type ReconcileStore interface {
	// Appointments whose request_id is requestID or whose description is tag.
	ListAppointmentsForRequest(ctx context.Context, requestID int64, tag string) ([]Appointment, error)
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)

	// Patients whose email or phone matches; empty arguments match nothing.
	ListPatientsByContact(ctx context.Context, email, phone string) ([]Patient, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
}
