package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/clinic-request-desk/internal/account"
	"github.com/hackgods/clinic-request-desk/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps domain errors onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, err error) {
	var (
		validation    *appointment.ValidationError
		accValidation *account.ValidationError
		partial       *appointment.PartialFailureError
		connectivity  *appointment.ConnectivityError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &accValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, appointment.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, appointment.ErrRequestInFlight):
		writeError(w, http.StatusConflict, "request_in_flight", "request is being processed, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, account.ErrAccountExists):
		writeError(w, http.StatusConflict, "account_exists", err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.As(err, &partial):
		writeError(w, http.StatusBadGateway, "partial_failure", err.Error())
	case errors.As(err, &connectivity):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
