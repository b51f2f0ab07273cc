package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-request-desk/internal/appointment"
)

func submitRequestHandler(svc RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body SubmitRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		created, err := svc.SubmitRequest(r.Context(), appointment.NewRequest{
			PatientName: body.PatientName,
			Phone:       body.Phone,
			Age:         body.Age,
			Email:       body.Email,
			RequestedAt: body.RequestedAt,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		cr := appointment.ClassifiedRequest{Request: *created, Status: appointment.RequestPending}
		writeJSON(w, http.StatusCreated, toRequestResponse(cr, false))
	}
}

func listRequestsHandler(svc RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter, err := appointment.ParseFilter(q.Get("filter"))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		if refresh, _ := strconv.ParseBool(q.Get("refresh")); refresh {
			if _, err := svc.Refresh(r.Context()); err != nil {
				handleServiceError(w, err)
				return
			}
		}

		entries, err := svc.Requests(r.Context(), filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := ListRequestsResponse{Requests: make([]RequestResponse, len(entries)), Count: len(entries)}
		for i, e := range entries {
			resp.Requests[i] = toRequestResponse(e.ClassifiedRequest, e.InFlight)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func acceptRequestHandler(svc RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestID(w, r)
		if !ok {
			return
		}

		res, err := svc.AcceptRequest(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AcceptResponse{
			RequestID:       res.RequestID,
			PatientID:       res.PatientID,
			AppointmentID:   res.AppointmentID,
			PatientCreated:  res.PatientCreated,
			AlreadyAccepted: res.AlreadyAccepted,
		})
	}
}

func rejectRequestHandler(svc RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestID(w, r)
		if !ok {
			return
		}

		cr, err := svc.RejectRequest(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(*cr, false))
	}
}

func resolveConflictHandler(svc RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestID(w, r)
		if !ok {
			return
		}

		cr, err := svc.ResolveConflict(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(*cr, false))
	}
}

func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
