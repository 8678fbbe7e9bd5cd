package model

import "time"

// DashboardStats is the summary card row. Present+Late+Absent always equals TotalStudents.
// Unresolved counts captures that matched no roster entry.
type DashboardStats struct {
	TotalStudents int `json:"total_students"`
	PresentToday  int `json:"present_today"`
	LateToday     int `json:"late_today"`
	AbsentToday   int `json:"absent_today"`
	Unresolved    int `json:"unresolved"`
}

// ChartSeriesPoint is one bar group of the weekday chart.
type ChartSeriesPoint struct {
	Label   string `json:"label"`
	DayKey  string `json:"day_key"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Late    int    `json:"late"`
}

// RatePoint is one day of the weekly attendance-rate series.
type RatePoint struct {
	Day    string `json:"day"`
	DayKey string `json:"day_key"`
	Rate   int    `json:"rate"`
}

// DailySummary is an archived reconciliation of one day.
type DailySummary struct {
	Day           string    `json:"day"`
	TotalStudents int       `json:"total_students"`
	Present       int       `json:"present"`
	Late          int       `json:"late"`
	Absent        int       `json:"absent"`
	Unresolved    int       `json:"unresolved"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// AttendanceRow is a capture joined to its student for list views.
type AttendanceRow struct {
	ID          string    `json:"id"`
	StudentID   *string   `json:"student_id"`
	StudentRef  string    `json:"student_ref"`
	DisplayName string    `json:"name"`
	DayKey      string    `json:"date"`
	Time        string    `json:"time"`
	OccurredAt  time.Time `json:"occurred_at"`
	Status      Status    `json:"status"`
}

// StudentInput is the payload for creating a student.
type StudentInput struct {
	Name         string `json:"name" validate:"required,notblank"`
	ExternalCode string `json:"external_code" validate:"required,notblank"`
}

// AttendanceInput is the payload for creating an attendance row.
// Date and Time are zero-padded wall-clock strings (2006-01-02, 15:04:05).
type AttendanceInput struct {
	StudentRef string `json:"student_ref" validate:"required,notblank"`
	Name       string `json:"name" validate:"required,notblank"`
	Date       string `json:"date" validate:"required,len=10,datetime=2006-01-02"`
	Time       string `json:"time" validate:"required,len=8,datetime=15:04:05"`
	Status     Status `json:"status"`
	Image      string `json:"image,omitempty"`
}

// AlertInput is the payload for creating an alert.
type AlertInput struct {
	Message      string    `json:"message" validate:"required,notblank"`
	OccurredAt   time.Time `json:"occurred_at" validate:"required"`
	Kind         AlertKind `json:"kind" validate:"required"`
	Acknowledged bool      `json:"acknowledged"`
}

// TimeRange bounds a fetch to [From, To). A zero bound is open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}
