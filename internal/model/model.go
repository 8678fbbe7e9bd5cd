package model

import (
	"strings"
	"time"
)

// Student is one roster entry. ID is the durable join key, ExternalCode the human-facing code (e.g. "STU001").
type Student struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ExternalCode string `json:"external_code"`
}

// AttendanceRecord is a single capture from the attendance system.
// StudentRef holds either a Student.ID or a Student.ExternalCode.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	StudentRef string    `json:"student_ref"`
	OccurredAt time.Time `json:"occurred_at"`
	Status     Status    `json:"status"`
	RawStatus  string    `json:"raw_status,omitempty"`
}

// AlertKind classifies an alert raised by the capture pipeline.
type AlertKind string

const (
	AlertUnknownFace   AlertKind = "UNKNOWN_FACE"
	AlertMultipleEntry AlertKind = "MULTIPLE_ATTENDANCE"
	AlertSystem        AlertKind = "SYSTEM"
)

// Alert is passed through to the dashboard untouched.
type Alert struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	OccurredAt   time.Time `json:"occurred_at"`
	Kind         AlertKind `json:"kind"`
	ImageURL     string    `json:"image_url,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
}

// Status is the closed presence vocabulary used throughout reconciliation.
type Status int

const (
	Absent Status = iota
	Late
	Present
)

func (s Status) String() string {
	switch s {
	case Present:
		return "Present"
	case Late:
		return "Late"
	default:
		return "Absent"
	}
}

// MarshalText renders the status name so JSON output reads "Present" rather than 2.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts any value known to ParseStatus.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, _ := ParseStatus(string(b))
	*s = parsed
	return nil
}

// Outranks reports whether s wins over other when one student has several captures in a day.
func (s Status) Outranks(other Status) bool {
	return s > other
}

// rawStatuses maps every value the backend has used across schema generations.
// The empty value comes from the presence-only schema, where a row existing means the student was seen.
var rawStatuses = map[string]Status{
	"":        Present,
	"present": Present,
	"late":    Late,
	"absent":  Absent,
}

// ParseStatus maps a raw backend status. Unknown values come back as Absent with ok=false.
func ParseStatus(raw string) (Status, bool) {
	st, ok := rawStatuses[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return Absent, false
	}
	return st, true
}

// WireValue is the value written to the records schema.
func (s Status) WireValue() string {
	return strings.ToUpper(s.String())
}
