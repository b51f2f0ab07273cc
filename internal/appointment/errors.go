package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid request status transition")
	ErrRequestInFlight   = errors.New("request is already being processed")
)

// ValidationError reports a missing or malformed field. It is always returned
// before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConnectivityError wraps a transport-level failure talking to the store.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: store unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// PartialFailureError means a patient was created but the appointment was
// not. The patient is kept; accepting the request again reuses it.
type PartialFailureError struct {
	PatientID int64
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("patient %d created but appointment was not: %v", e.PatientID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
