package appointment

import (
	"time"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Patient defaults used when a request creates a new patient record.
const (
	GenderUnspecified  = "unspecified"
	AddressUnspecified = "unspecified"
)

// Request is an appointment request submitted by a patient and awaiting a
// staff decision. Email is empty when the patient did not give one.
type Request struct {
	ID          int64
	PatientName string
	Phone       string
	Age         *int
	Email       string
	CreatedAt   time.Time
	RequestedAt time.Time
	RejectedAt  *time.Time
}

type Appointment struct {
	ID          int64
	PatientID   int64
	DoctorID    int64
	RequestID   *int64
	Description string
	ScheduledAt time.Time
	Status      AppointmentStatus
	CreatedAt   time.Time
}

type Patient struct {
	ID        int64
	Name      string
	Surname   string
	Age       *int
	Gender    string
	Phone     string
	Email     string
	Address   string
	Birthdate *time.Time
	CreatedAt time.Time
}

// ClassifiedRequest is a request together with the state derived from the
// store: its status and whether it collides with another pending request.
type ClassifiedRequest struct {
	Request
	Status        RequestStatus
	HasConflict   bool
	AppointmentID *int64
}

// BoardEntry is what the request desk shows for one request.
type BoardEntry struct {
	ClassifiedRequest
	InFlight bool
}

// NewRequest is the public intake payload.
type NewRequest struct {
	PatientName string
	Phone       string
	Age         *int
	Email       string
	RequestedAt time.Time
}

type AcceptResult struct {
	RequestID       int64
	PatientID       int64
	AppointmentID   int64
	PatientCreated  bool
	AlreadyAccepted bool
}

type EventLog struct {
	ID        int64
	EventType string
	RequestID *int64
	Payload   []byte
	CreatedAt time.Time
}
