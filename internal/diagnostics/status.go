package diagnostics

import (
	"context"
	"sort"

	"attendboard/internal/attendance"
	"attendboard/internal/model"
)

const (
	statusStudentLimit    = 10
	statusAttendanceLimit = 5
)

// Counts are table sizes.
type Counts struct {
	Students   int `json:"students"`
	Attendance int `json:"attendance"`
}

// StudentEntry is a roster sample row.
type StudentEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// AttendanceEntry is a recent capture sample row.
type AttendanceEntry struct {
	Student string `json:"student"`
	Day     string `json:"day"`
	Time    string `json:"time"`
}

// DatabaseStatus summarises what the backend currently holds.
type DatabaseStatus struct {
	HasData          bool              `json:"hasData"`
	Counts           Counts            `json:"counts"`
	Students         []StudentEntry    `json:"students"`
	RecentAttendance []AttendanceEntry `json:"recentAttendance"`
	Error            string            `json:"error,omitempty"`
}

// Status reads the roster and all captures. Backend failures are reported in
// the Error field, never returned.
func Status(ctx context.Context, backend Backend, zone attendance.ZonePolicy) DatabaseStatus {
	out := DatabaseStatus{Students: []StudentEntry{}, RecentAttendance: []AttendanceEntry{}}

	roster, err := backend.FetchRoster(ctx)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	records, err := backend.FetchAttendance(ctx, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Counts = Counts{Students: len(roster), Attendance: len(records)}
	out.HasData = len(roster) > 0 || len(records) > 0

	for i, st := range roster {
		if i == statusStudentLimit {
			break
		}
		out.Students = append(out.Students, StudentEntry{Code: st.ExternalCode, Name: st.Name})
	}

	recent := append([]model.AttendanceRecord(nil), records...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].OccurredAt.After(recent[j].OccurredAt) })
	loc := zone.Location()
	for i, rec := range recent {
		if i == statusAttendanceLimit {
			break
		}
		local := rec.OccurredAt.In(loc)
		out.RecentAttendance = append(out.RecentAttendance, AttendanceEntry{
			Student: attendance.Resolve(rec, roster).DisplayName,
			Day:     local.Format("2006-01-02"),
			Time:    local.Format("15:04:05"),
		})
	}
	return out
}
