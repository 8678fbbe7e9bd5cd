package gqlclient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"attendboard/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

type studentItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	StudentIDNumber string `json:"studentIDNumber"`
}

type recordItem struct {
	ID        string `json:"id"`
	StudentID string `json:"studentID"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type alertItem struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
	AlertType    string `json:"alertType"`
	ImageURL     string `json:"imageUrl"`
	Acknowledged bool   `json:"acknowledged"`
}

type faceIndexItem struct {
	StudentID string `json:"StudentID"`
	Name      string `json:"Name"`
}

type attendanceItem struct {
	StudentID string `json:"StudentID"`
	Date      string `json:"Date"`
	Time      string `json:"Time"`
	Image     string `json:"Image"`
	Name      string `json:"Name"`
}

// legacyID derives a stable key for a legacy row, which carries no id of its own.
func (it attendanceItem) legacyID() string {
	return it.StudentID + "_" + it.Date + "_" + it.Time
}

// FetchRoster returns every student known to the backend.
func (c *Client) FetchRoster(ctx context.Context) ([]model.Student, error) {
	if c.Schema == SchemaLegacy {
		items, err := listAll[faceIndexItem](ctx, c, "listFaceIndices", listFaceIndicesQuery, "listFaceIndices", nil)
		if err != nil {
			return nil, err
		}
		out := make([]model.Student, 0, len(items))
		for _, it := range items {
			out = append(out, model.Student{ID: it.StudentID, Name: it.Name, ExternalCode: it.StudentID})
		}
		return out, nil
	}

	items, err := listAll[studentItem](ctx, c, "listStudents", listStudentsQuery, "listStudents", nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.Student, 0, len(items))
	for _, it := range items {
		out = append(out, model.Student{ID: it.ID, Name: it.Name, ExternalCode: it.StudentIDNumber})
	}
	return out, nil
}

// FetchAttendance returns attendance rows, narrowed server-side to rng when given.
// Callers must not rely on the backend honouring the filter.
func (c *Client) FetchAttendance(ctx context.Context, rng *model.TimeRange) ([]model.AttendanceRecord, error) {
	if c.Schema == SchemaLegacy {
		return c.fetchLegacyAttendance(ctx, rng)
	}

	items, err := listAll[recordItem](ctx, c, "listAttendanceRecords", listAttendanceRecordsQuery, "listAttendanceRecords", timestampFilter(rng))
	if err != nil {
		return nil, err
	}
	out := make([]model.AttendanceRecord, 0, len(items))
	unknown := map[string]int{}
	skipped := 0
	for _, it := range items {
		ts, err := time.Parse(time.RFC3339Nano, it.Timestamp)
		if err != nil {
			skipped++
			continue
		}
		st, ok := model.ParseStatus(it.Status)
		if !ok {
			unknown[it.Status]++
		}
		out = append(out, model.AttendanceRecord{
			ID:         it.ID,
			StudentRef: it.StudentID,
			OccurredAt: ts,
			Status:     st,
			RawStatus:  it.Status,
		})
	}
	c.warnDropped(skipped, unknown)
	return out, nil
}

func (c *Client) fetchLegacyAttendance(ctx context.Context, rng *model.TimeRange) ([]model.AttendanceRecord, error) {
	items, err := listAll[attendanceItem](ctx, c, "listAttendances", listAttendancesQuery, "listAttendances", dateFilter(rng))
	if err != nil {
		return nil, err
	}
	out := make([]model.AttendanceRecord, 0, len(items))
	skipped := 0
	for _, it := range items {
		ts, err := parseLegacyInstant(it.Date, it.Time)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, model.AttendanceRecord{
			ID:         it.legacyID(),
			StudentRef: it.StudentID,
			OccurredAt: ts,
			Status:     model.Present,
		})
	}
	c.warnDropped(skipped, nil)
	return out, nil
}

// FetchAlerts returns alerts as stored. The legacy schema has none.
func (c *Client) FetchAlerts(ctx context.Context) ([]model.Alert, error) {
	if c.Schema == SchemaLegacy {
		return []model.Alert{}, nil
	}
	items, err := listAll[alertItem](ctx, c, "listAlerts", listAlertsQuery, "listAlerts", nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.Alert, 0, len(items))
	for _, it := range items {
		out = append(out, toAlert(it))
	}
	return out, nil
}

// CreateStudent adds a student (a face index entry in the legacy schema).
func (c *Client) CreateStudent(ctx context.Context, in model.StudentInput) (model.Student, error) {
	if c.Schema == SchemaLegacy {
		var data struct {
			CreateFaceIndex *faceIndexItem `json:"createFaceIndex"`
		}
		input := map[string]any{"StudentID": in.ExternalCode, "Name": in.Name}
		if err := c.do(ctx, "createFaceIndex", createFaceIndexMutation, map[string]any{"input": input}, &data); err != nil {
			return model.Student{}, err
		}
		if data.CreateFaceIndex == nil || data.CreateFaceIndex.StudentID == "" {
			return model.Student{}, fmt.Errorf("invalid createFaceIndex response for %s", in.ExternalCode)
		}
		it := data.CreateFaceIndex
		return model.Student{ID: it.StudentID, Name: it.Name, ExternalCode: it.StudentID}, nil
	}

	var data struct {
		CreateStudent *studentItem `json:"createStudent"`
	}
	input := map[string]any{"name": in.Name, "studentIDNumber": in.ExternalCode}
	if err := c.do(ctx, "createStudent", createStudentMutation, map[string]any{"input": input}, &data); err != nil {
		return model.Student{}, err
	}
	if data.CreateStudent == nil || data.CreateStudent.ID == "" {
		return model.Student{}, fmt.Errorf("invalid createStudent response for %s", in.ExternalCode)
	}
	it := data.CreateStudent
	return model.Student{ID: it.ID, Name: it.Name, ExternalCode: it.StudentIDNumber}, nil
}

// CreateAttendanceRecord adds one capture. Date and Time are read as UTC.
func (c *Client) CreateAttendanceRecord(ctx context.Context, in model.AttendanceInput) (model.AttendanceRecord, error) {
	occurred, err := parseLegacyInstant(in.Date, in.Time)
	if err != nil {
		return model.AttendanceRecord{}, err
	}

	if c.Schema == SchemaLegacy {
		var data struct {
			CreateAttendance *attendanceItem `json:"createAttendance"`
		}
		input := map[string]any{"StudentID": in.StudentRef, "Name": in.Name, "Date": in.Date, "Time": in.Time}
		if in.Image != "" {
			input["Image"] = in.Image
		}
		if err := c.do(ctx, "createAttendance", createAttendanceMutation, map[string]any{"input": input}, &data); err != nil {
			return model.AttendanceRecord{}, err
		}
		if data.CreateAttendance == nil || data.CreateAttendance.StudentID == "" {
			return model.AttendanceRecord{}, fmt.Errorf("invalid createAttendance response for %s", in.StudentRef)
		}
		return model.AttendanceRecord{
			ID:         data.CreateAttendance.legacyID(),
			StudentRef: in.StudentRef,
			OccurredAt: occurred,
			Status:     model.Present,
		}, nil
	}

	var data struct {
		CreateAttendanceRecord *recordItem `json:"createAttendanceRecord"`
	}
	input := map[string]any{
		"studentID": in.StudentRef,
		"timestamp": occurred.Format(time.RFC3339),
		"status":    in.Status.WireValue(),
	}
	if err := c.do(ctx, "createAttendanceRecord", createAttendanceRecordMutation, map[string]any{"input": input}, &data); err != nil {
		return model.AttendanceRecord{}, err
	}
	if data.CreateAttendanceRecord == nil || data.CreateAttendanceRecord.ID == "" {
		return model.AttendanceRecord{}, fmt.Errorf("invalid createAttendanceRecord response for %s", in.StudentRef)
	}
	it := data.CreateAttendanceRecord
	st, _ := model.ParseStatus(it.Status)
	return model.AttendanceRecord{
		ID:         it.ID,
		StudentRef: it.StudentID,
		OccurredAt: occurred,
		Status:     st,
		RawStatus:  it.Status,
	}, nil
}

// CreateAlert raises an alert. Not available in the legacy schema.
func (c *Client) CreateAlert(ctx context.Context, in model.AlertInput) (model.Alert, error) {
	if c.Schema == SchemaLegacy {
		return model.Alert{}, fmt.Errorf("createAlert: %w", ErrUnsupported)
	}
	var data struct {
		CreateAlert *alertItem `json:"createAlert"`
	}
	input := map[string]any{
		"message":      in.Message,
		"timestamp":    in.OccurredAt.UTC().Format(time.RFC3339),
		"alertType":    string(in.Kind),
		"acknowledged": in.Acknowledged,
	}
	if err := c.do(ctx, "createAlert", createAlertMutation, map[string]any{"input": input}, &data); err != nil {
		return model.Alert{}, err
	}
	if data.CreateAlert == nil || data.CreateAlert.ID == "" {
		return model.Alert{}, fmt.Errorf("invalid createAlert response")
	}
	return toAlert(*data.CreateAlert), nil
}

func (c *Client) warnDropped(skipped int, unknown map[string]int) {
	if skipped > 0 {
		c.logger.Warn().Int("count", skipped).Msg("attendance rows with unreadable timestamps dropped")
	}
	if len(unknown) == 0 {
		return
	}
	values := make([]string, 0, len(unknown))
	total := 0
	for v, n := range unknown {
		values = append(values, v)
		total += n
	}
	sort.Strings(values)
	c.logger.Warn().Int("count", total).Strs("values", values).Msg("unknown attendance status values read as absent")
}

func toAlert(it alertItem) model.Alert {
	ts, _ := time.Parse(time.RFC3339Nano, it.Timestamp)
	return model.Alert{
		ID:           it.ID,
		Message:      it.Message,
		OccurredAt:   ts,
		Kind:         model.AlertKind(it.AlertType),
		ImageURL:     it.ImageURL,
		Acknowledged: it.Acknowledged,
	}
}

func parseLegacyInstant(date, clock string) (time.Time, error) {
	ts, err := time.ParseInLocation(dateTimeLayout, date+" "+clock, time.UTC)
	if err == nil {
		return ts, nil
	}
	if ts, err2 := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, time.UTC); err2 == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
}

func timestampFilter(rng *model.TimeRange) map[string]any {
	if rng == nil || (rng.From.IsZero() && rng.To.IsZero()) {
		return nil
	}
	var cond map[string]any
	switch {
	case rng.From.IsZero():
		cond = map[string]any{"lt": rng.To.UTC().Format(time.RFC3339)}
	case rng.To.IsZero():
		cond = map[string]any{"ge": rng.From.UTC().Format(time.RFC3339)}
	default:
		cond = map[string]any{"between": []string{rng.From.UTC().Format(time.RFC3339), rng.To.UTC().Format(time.RFC3339)}}
	}
	return map[string]any{"timestamp": cond}
}

// dateFilter narrows legacy rows by their UTC date column, inclusive.
func dateFilter(rng *model.TimeRange) map[string]any {
	if rng == nil || (rng.From.IsZero() && rng.To.IsZero()) {
		return nil
	}
	var cond map[string]any
	last := rng.To.Add(-time.Nanosecond).UTC().Format(dateLayout)
	switch {
	case rng.From.IsZero():
		cond = map[string]any{"le": last}
	case rng.To.IsZero():
		cond = map[string]any{"ge": rng.From.UTC().Format(dateLayout)}
	default:
		cond = map[string]any{"between": []string{rng.From.UTC().Format(dateLayout), last}}
	}
	return map[string]any{"Date": cond}
}
