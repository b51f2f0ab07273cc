package appointment

import (
	"fmt"
	"strconv"
	"strings"
)

// tagMarker separates the patient name from the request id in an appointment
// description. Existing rows depend on this exact text.
const tagMarker = " - Solicitud "

// Tag is the correlation key embedded in the description of an appointment
// created from a request.
type Tag struct {
	PatientName string
	RequestID   int64
}

// RequestTag renders "<patientName> - Solicitud <requestId>".
func RequestTag(patientName string, requestID int64) string {
	return fmt.Sprintf("%s%s%d", patientName, tagMarker, requestID)
}

// ParseRequestTag reads a tag back out of a description. The request id is the
// text after the last marker and must be a positive integer.
func ParseRequestTag(description string) (Tag, bool) {
	i := strings.LastIndex(description, tagMarker)
	if i < 0 {
		return Tag{}, false
	}

	id, err := strconv.ParseInt(description[i+len(tagMarker):], 10, 64)
	if err != nil || id <= 0 {
		return Tag{}, false
	}

	return Tag{PatientName: description[:i], RequestID: id}, true
}

func (t Tag) String() string {
	return RequestTag(t.PatientName, t.RequestID)
}
