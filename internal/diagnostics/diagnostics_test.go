package diagnostics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendboard/internal/attendance"
	"attendboard/internal/faceclient"
	"attendboard/internal/gqlclient"
	"attendboard/internal/model"
)

type stubBackend struct {
	pingErr   error
	rosterErr error
	roster    []model.Student
	records   []model.AttendanceRecord
}

func (s *stubBackend) Ping(context.Context) error { return s.pingErr }

func (s *stubBackend) FetchRoster(context.Context) ([]model.Student, error) {
	return s.roster, s.rosterErr
}

func (s *stubBackend) FetchAttendance(context.Context, *model.TimeRange) ([]model.AttendanceRecord, error) {
	return s.records, nil
}

type stubFace struct{ err error }

func (f stubFace) Health(context.Context) (*faceclient.HealthReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &faceclient.HealthReport{Status: "healthy", Reachable: true}, nil
}

type stubArchive struct{ err error }

func (a stubArchive) Ping(context.Context) error { return a.err }

var clock = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func TestRunAllPassing(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	backend := &stubBackend{roster: []model.Student{{ID: "a", Name: "John Smith", ExternalCode: "STU001"}}}
	r := NewRunner(Config{Endpoint: "https://api.example.test/graphql", Schema: gqlclient.SchemaRecords, APIKeySet: true},
		backend, stubFace{}, redis.NewClient(&redis.Options{Addr: mini.Addr()}), stubArchive{}, zerolog.Nop())
	r.now = func() time.Time { return clock }

	rep := r.Run(context.Background())
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 6, rep.Passed)
	assert.Equal(t, 0, rep.Failed)

	names := make([]string, 0, len(rep.Results))
	for _, res := range rep.Results {
		names = append(names, res.Test)
	}
	assert.Equal(t, []string{"Config", "GraphQL Connection", "API Permissions", "Face Service", "Cache", "Archive"}, names)

	lines := strings.Split(rep.Log, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, `[2024-05-15T10:00:00Z] API Permissions: PASS - Read access to roster and attendance ({"attendance":0,"students":1})`, lines[2])
	assert.Equal(t, "[2024-05-15T10:00:00Z] Cache: PASS - Redis reachable", lines[4])
}

func TestRunKeepsGoingAfterFailures(t *testing.T) {
	backend := &stubBackend{
		pingErr:   errors.New("dial tcp: no such host"),
		rosterErr: &gqlclient.ResponseError{Operation: "listStudents", Errors: []gqlclient.GraphQLError{{Message: "Unauthorized"}}},
	}
	r := NewRunner(Config{}, backend, stubFace{err: errors.New("face service unavailable")}, nil, stubArchive{err: errors.New("closed")}, zerolog.Nop())
	r.now = func() time.Time { return clock }

	rep := r.Run(context.Background())
	require.Len(t, rep.Results, 6)
	assert.Equal(t, 1, rep.Passed) // cache skipped
	assert.Equal(t, 5, rep.Failed)

	assert.False(t, rep.Results[0].Success)
	assert.Equal(t, gqlclient.ErrEndpointMissing.Error(), rep.Results[0].Message)
	assert.Contains(t, rep.Results[1].Message, "no such host")
	assert.Contains(t, rep.Results[2].Message, "roster read rejected")
	assert.True(t, rep.Results[4].Success)
	assert.Contains(t, strings.Split(rep.Log, "\n")[1], "GraphQL Connection: FAIL - connection failed")
}

type stubWriter struct {
	attendanceErr error
	students      []model.StudentInput
	attendance    []model.AttendanceInput
}

func (w *stubWriter) CreateStudent(_ context.Context, in model.StudentInput) (model.Student, error) {
	w.students = append(w.students, in)
	return model.Student{ID: "new-1", Name: in.Name, ExternalCode: in.ExternalCode}, nil
}

func (w *stubWriter) CreateAttendanceRecord(_ context.Context, in model.AttendanceInput) (model.AttendanceRecord, error) {
	if w.attendanceErr != nil {
		return model.AttendanceRecord{}, w.attendanceErr
	}
	w.attendance = append(w.attendance, in)
	return model.AttendanceRecord{ID: "rec-1", StudentRef: in.StudentRef}, nil
}

func TestRunWriteCreatesStudentAndAttendance(t *testing.T) {
	r := NewRunner(Config{Endpoint: "https://api.example.test/graphql"}, &stubBackend{}, nil, nil, nil, zerolog.Nop())
	r.now = func() time.Time { return clock }
	w := &stubWriter{}

	rep := r.RunWrite(context.Background(), w)
	require.Len(t, rep.Results, 7)
	assert.Equal(t, 7, rep.Passed)
	last := rep.Results[6]
	assert.Equal(t, "Write Access", last.Test)
	assert.Equal(t, map[string]any{"student_id": "new-1", "student_code": w.students[0].ExternalCode, "attendance_id": "rec-1"}, last.Details)

	require.Len(t, w.students, 1)
	assert.Regexp(t, `^TEST\d{6}$`, w.students[0].ExternalCode)
	require.Len(t, w.attendance, 1)
	assert.Equal(t, model.AttendanceInput{
		StudentRef: "new-1",
		Name:       w.students[0].Name,
		Date:       "2024-05-15",
		Time:       "10:00:00",
		Status:     model.Present,
		Image:      w.attendance[0].Image,
	}, w.attendance[0])

	assert.Len(t, r.Run(context.Background()).Results, 6)
}

func TestRunWriteReportsCreateFailure(t *testing.T) {
	r := NewRunner(Config{Endpoint: "https://api.example.test/graphql"}, &stubBackend{}, nil, nil, nil, zerolog.Nop())
	r.now = func() time.Time { return clock }

	rep := r.RunWrite(context.Background(), &stubWriter{attendanceErr: errors.New("Not Authorized to access createAttendanceRecord")})
	assert.Equal(t, 1, rep.Failed)
	assert.Contains(t, rep.Results[6].Message, "create attendance failed: Not Authorized")
	assert.Contains(t, strings.Split(rep.Log, "\n")[6], "Write Access: FAIL")
}

func TestStatus(t *testing.T) {
	roster := []model.Student{}
	for _, code := range []string{"STU001", "STU002", "STU003", "STU004", "STU005", "STU006", "STU007", "STU008", "STU009", "STU010", "STU011"} {
		roster = append(roster, model.Student{ID: "id-" + code, Name: "Name " + code, ExternalCode: code})
	}
	records := []model.AttendanceRecord{}
	for i := 0; i < 7; i++ {
		records = append(records, model.AttendanceRecord{
			ID:         "r",
			StudentRef: "id-STU001",
			OccurredAt: clock.Add(time.Duration(i) * time.Hour),
			Status:     model.Present,
		})
	}
	records = append(records, model.AttendanceRecord{StudentRef: "ghost", OccurredAt: clock.Add(24 * time.Hour)})

	st := Status(context.Background(), &stubBackend{roster: roster, records: records}, attendance.UTC())
	assert.True(t, st.HasData)
	assert.Equal(t, Counts{Students: 11, Attendance: 8}, st.Counts)
	assert.Len(t, st.Students, 10)
	assert.Equal(t, StudentEntry{Code: "STU001", Name: "Name STU001"}, st.Students[0])
	require.Len(t, st.RecentAttendance, 5)
	assert.Equal(t, AttendanceEntry{Student: "Unknown Student", Day: "2024-05-16", Time: "10:00:00"}, st.RecentAttendance[0])
	assert.Equal(t, "Name STU001", st.RecentAttendance[1].Student)
	assert.Empty(t, st.Error)
}

func TestStatusBackendFailure(t *testing.T) {
	st := Status(context.Background(), &stubBackend{rosterErr: errors.New("timeout")}, attendance.UTC())
	assert.False(t, st.HasData)
	assert.Equal(t, "timeout", st.Error)
	assert.NotNil(t, st.Students)
}
