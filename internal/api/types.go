package api

import (
	"time"

	"github.com/hackgods/clinic-request-desk/internal/account"
	"github.com/hackgods/clinic-request-desk/internal/appointment"
)

type SubmitRequestBody struct {
	PatientName string    `json:"patientName"`
	Phone       string    `json:"phone"`
	Age         *int      `json:"age"`
	Email       string    `json:"email"`
	RequestedAt time.Time `json:"requestedAt"`
}

type RequestResponse struct {
	ID            int64     `json:"id"`
	PatientName   string    `json:"patientName"`
	Phone         string    `json:"phone"`
	Age           *int      `json:"age"`
	Email         string    `json:"email"`
	CreatedAt     time.Time `json:"createdAt"`
	RequestedAt   time.Time `json:"requestedAt"`
	Status        string    `json:"status"`
	HasConflict   bool      `json:"hasConflict"`
	AppointmentID *int64    `json:"appointmentId,omitempty"`
	InFlight      bool      `json:"inFlight"`
}

type ListRequestsResponse struct {
	Requests []RequestResponse `json:"requests"`
	Count    int               `json:"count"`
}

type AcceptResponse struct {
	RequestID       int64 `json:"requestId"`
	PatientID       int64 `json:"patientId"`
	AppointmentID   int64 `json:"appointmentId"`
	PatientCreated  bool  `json:"patientCreated"`
	AlreadyAccepted bool  `json:"alreadyAccepted"`
}

type RegisterBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AccountResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toRequestResponse(cr appointment.ClassifiedRequest, inFlight bool) RequestResponse {
	return RequestResponse{
		ID:            cr.ID,
		PatientName:   cr.PatientName,
		Phone:         cr.Phone,
		Age:           cr.Age,
		Email:         cr.Email,
		CreatedAt:     cr.CreatedAt,
		RequestedAt:   cr.RequestedAt,
		Status:        string(cr.Status),
		HasConflict:   cr.HasConflict,
		AppointmentID: cr.AppointmentID,
		InFlight:      inFlight,
	}
}

func toAccountResponse(a account.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Username: a.Username, Email: a.Email, CreatedAt: a.CreatedAt}
}
