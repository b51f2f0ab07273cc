package appointment

import (
	"regexp"
	"strings"
	"time"
)

var (
	phonePattern = regexp.MustCompile(`^\d{7,15}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

const maxAge = 120

// ValidateNewRequest checks an intake submission and returns it normalised.
func ValidateNewRequest(in NewRequest, now time.Time) (NewRequest, error) {
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)

	if in.PatientName == "" {
		return in, &ValidationError{Field: "patientName", Message: "is required"}
	}
	if in.Phone != "" && !phonePattern.MatchString(in.Phone) {
		return in, &ValidationError{Field: "phone", Message: "must be 7 to 15 digits"}
	}
	if in.Email != "" && !emailPattern.MatchString(in.Email) {
		return in, &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if in.Age != nil && (*in.Age < 0 || *in.Age > maxAge) {
		return in, &ValidationError{Field: "age", Message: "must be between 0 and 120"}
	}
	if in.RequestedAt.IsZero() {
		return in, &ValidationError{Field: "requestedAt", Message: "is required"}
	}
	if !in.RequestedAt.After(now) {
		return in, &ValidationError{Field: "requestedAt", Message: "must be in the future"}
	}
	return in, nil
}
