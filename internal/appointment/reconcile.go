package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Reconciler turns an accepted request into a confirmed appointment, finding
// or creating the patient on the way.
type Reconciler struct {
	store    ReconcileStore
	doctorID int64
	patients *lru.Cache[string, Patient]
}

// NewReconciler builds a reconciler. cacheSize > 0 keeps recently resolved
// patients keyed by contact so repeat requests skip the lookup.
func NewReconciler(store ReconcileStore, doctorID int64, cacheSize int) (*Reconciler, error) {
	r := &Reconciler{store: store, doctorID: doctorID}
	if cacheSize > 0 {
		c, err := lru.New[string, Patient](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create patient cache: %w", err)
		}
		r.patients = c
	}
	return r, nil
}

func (r *Reconciler) Accept(ctx context.Context, req Request) (*AcceptResult, error) {
	if req.RejectedAt != nil {
		return nil, ErrInvalidTransition
	}
	if err := validateForAccept(req); err != nil {
		return nil, err
	}

	existing, err := r.existing(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	patient, created, err := r.resolvePatient(ctx, req)
	if err != nil {
		return nil, err
	}

	reqID := req.ID
	appt, err := r.store.CreateAppointment(ctx, Appointment{
		PatientID:   patient.ID,
		DoctorID:    r.doctorID,
		RequestID:   &reqID,
		Description: RequestTag(req.PatientName, req.ID),
		ScheduledAt: req.RequestedAt,
		Status:      StatusConfirmed,
	})
	if err != nil {
		// another session inserted first; report its appointment
		if errors.Is(err, ErrDuplicateAppointment) {
			winner, lookupErr := r.existing(ctx, req)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if winner != nil {
				return winner, nil
			}
		}
		if created {
			return nil, &PartialFailureError{PatientID: patient.ID, Err: err}
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	return &AcceptResult{
		RequestID:      req.ID,
		PatientID:      patient.ID,
		AppointmentID:  appt.ID,
		PatientCreated: created,
	}, nil
}

func validateForAccept(req Request) error {
	if strings.TrimSpace(req.PatientName) == "" {
		return &ValidationError{Field: "patientName", Message: "is required"}
	}
	if req.RequestedAt.IsZero() {
		return &ValidationError{Field: "requestedAt", Message: "is required"}
	}
	return nil
}

// existing is the idempotency guard: it returns the result of an earlier
// acceptance of req, or nil if there was none.
func (r *Reconciler) existing(ctx context.Context, req Request) (*AcceptResult, error) {
	appts, err := r.store.ListAppointmentsForRequest(ctx, req.ID, RequestTag(req.PatientName, req.ID))
	if err != nil {
		return nil, fmt.Errorf("check existing appointment: %w", err)
	}

	appt := FindAcceptance(req, appts)
	if appt == nil {
		return nil, nil
	}
	return &AcceptResult{
		RequestID:       req.ID,
		PatientID:       appt.PatientID,
		AppointmentID:   appt.ID,
		AlreadyAccepted: true,
	}, nil
}

func (r *Reconciler) resolvePatient(ctx context.Context, req Request) (*Patient, bool, error) {
	if p, ok := r.cachedPatient(req); ok {
		return &p, false, nil
	}

	email, phone := normalizeEmail(req.Email), normalizePhone(req.Phone)
	if email != "" || phone != "" {
		candidates, err := r.store.ListPatientsByContact(ctx, email, phone)
		if err != nil {
			return nil, false, fmt.Errorf("find patient: %w", err)
		}
		if p := MatchPatient(req, candidates); p != nil {
			r.remember(*p)
			return p, false, nil
		}
	}

	created, err := r.store.CreatePatient(ctx, Patient{
		Name:    strings.TrimSpace(req.PatientName),
		Age:     req.Age,
		Gender:  GenderUnspecified,
		Phone:   phone,
		Email:   email,
		Address: AddressUnspecified,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create patient: %w", err)
	}
	r.remember(*created)
	return created, true, nil
}

// cachedPatient mirrors MatchPatient's precedence: a request with an email is
// only answered by the email key.
func (r *Reconciler) cachedPatient(req Request) (Patient, bool) {
	if r.patients == nil {
		return Patient{}, false
	}
	if email := normalizeEmail(req.Email); email != "" {
		return r.patients.Get("email:" + email)
	}
	if phone := normalizePhone(req.Phone); phone != "" {
		return r.patients.Get("phone:" + phone)
	}
	return Patient{}, false
}

func (r *Reconciler) remember(p Patient) {
	if r.patients == nil {
		return
	}
	if email := normalizeEmail(p.Email); email != "" {
		r.patients.Add("email:"+email, p)
	}
	if phone := normalizePhone(p.Phone); phone != "" {
		r.patients.Add("phone:"+phone, p)
	}
}
