package appointment

import (
	"strings"
	"time"
	"unicode"
)

type Filter string

const (
	FilterAll      Filter = "all"
	FilterConflict Filter = "conflict"
	FilterClear    Filter = "clear"
)

func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterConflict, FilterClear:
		return f, nil
	default:
		return "", &ValidationError{Field: "filter", Message: "must be one of all, conflict, clear"}
	}
}

// ClassifyRequests derives each request's status from the appointments that
// already exist. Output order follows the input.
func ClassifyRequests(requests []Request, appointments []Appointment) []ClassifiedRequest {
	out := make([]ClassifiedRequest, len(requests))
	for i, req := range requests {
		cr := ClassifiedRequest{Request: req, Status: RequestPending}
		if appt := FindAcceptance(req, appointments); appt != nil {
			id := appt.ID
			cr.Status = RequestAccepted
			cr.AppointmentID = &id
		} else if req.RejectedAt != nil {
			cr.Status = RequestRejected
		}
		out[i] = cr
	}
	return out
}

// FindAcceptance returns the appointment created for req, if any.
//
// The request_id column wins, then a parsed description tag that names both
// the request id and the patient. Rows without either fall back to the old
// rule: the description mentions the patient and the slot time is identical.
func FindAcceptance(req Request, appointments []Appointment) *Appointment {
	for i := range appointments {
		if correlates(req, appointments[i]) {
			return &appointments[i]
		}
	}
	return nil
}

func correlates(req Request, appt Appointment) bool {
	if appt.RequestID != nil {
		return *appt.RequestID == req.ID
	}
	if tag, ok := ParseRequestTag(appt.Description); ok {
		return tag.RequestID == req.ID && tag.PatientName == req.PatientName
	}
	name := strings.TrimSpace(req.PatientName)
	return name != "" &&
		strings.Contains(appt.Description, name) &&
		appt.ScheduledAt.Equal(req.RequestedAt)
}

// DetectConflicts flags every pending request that shares its calendar day
// (in loc) with another pending request. Requests in any other status are
// never flagged and do not count toward a day.
func DetectConflicts(classified []ClassifiedRequest, loc *time.Location) []ClassifiedRequest {
	if loc == nil {
		loc = time.Local
	}

	perDay := make(map[string]int)
	for _, cr := range classified {
		if cr.Status == RequestPending {
			perDay[dayKey(cr.RequestedAt, loc)]++
		}
	}

	out := make([]ClassifiedRequest, len(classified))
	for i, cr := range classified {
		cr.HasConflict = cr.Status == RequestPending && perDay[dayKey(cr.RequestedAt, loc)] > 1
		out[i] = cr
	}
	return out
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// MatchPatient finds the patient a request belongs to: email first, then
// phone. Blank contact fields never match.
func MatchPatient(req Request, patients []Patient) *Patient {
	if email := normalizeEmail(req.Email); email != "" {
		for i := range patients {
			if normalizeEmail(patients[i].Email) == email {
				return &patients[i]
			}
		}
	}
	if phone := normalizePhone(req.Phone); phone != "" {
		for i := range patients {
			if normalizePhone(patients[i].Phone) == phone {
				return &patients[i]
			}
		}
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func RejectRequest(cr ClassifiedRequest) (ClassifiedRequest, error) {
	if cr.Status != RequestPending {
		return cr, ErrInvalidTransition
	}
	cr.Status = RequestRejected
	cr.HasConflict = false
	return cr, nil
}

// ResolveConflict clears the conflict flag on one request only. Requests that
// shared its day keep whatever flag they had.
func ResolveConflict(cr ClassifiedRequest) (ClassifiedRequest, error) {
	if cr.Status != RequestPending {
		return cr, ErrInvalidTransition
	}
	cr.HasConflict = false
	return cr, nil
}

func MarkAccepted(cr ClassifiedRequest, appointmentID int64) ClassifiedRequest {
	cr.Status = RequestAccepted
	cr.HasConflict = false
	cr.AppointmentID = &appointmentID
	return cr
}

// FilterRequests narrows a desk listing to conflicted or clear requests.
func FilterRequests(list []BoardEntry, f Filter) []BoardEntry {
	out := make([]BoardEntry, 0, len(list))
	for _, e := range list {
		switch {
		case f == FilterConflict && !e.HasConflict:
			continue
		case f == FilterClear && e.HasConflict:
			continue
		}
		out = append(out, e)
	}
	return out
}
