package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendboard/internal/model"
)

type fakeBackend struct {
	mu          sync.Mutex
	roster      []model.Student
	rosterErr   error
	failStudent map[string]int // code -> failures before success (-1 = always)
	students    []model.Student
	attendance  []model.AttendanceInput
	alerts      []model.AlertInput
	attempts    map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failStudent: map[string]int{}, attempts: map[string]int{}}
}

func (f *fakeBackend) FetchRoster(context.Context) ([]model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return append(append([]model.Student(nil), f.roster...), f.students...), nil
}

func (f *fakeBackend) CreateStudent(_ context.Context, in model.StudentInput) (model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[in.ExternalCode]++
	if left, ok := f.failStudent[in.ExternalCode]; ok && (left < 0 || f.attempts[in.ExternalCode] <= left) {
		return model.Student{}, fmt.Errorf("backend rejected %s", in.ExternalCode)
	}
	st := model.Student{ID: "id-" + in.ExternalCode, Name: in.Name, ExternalCode: in.ExternalCode}
	f.students = append(f.students, st)
	return st, nil
}

func (f *fakeBackend) CreateAttendanceRecord(_ context.Context, in model.AttendanceInput) (model.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attendance = append(f.attendance, in)
	return model.AttendanceRecord{ID: fmt.Sprintf("rec-%d", len(f.attendance)), StudentRef: in.StudentRef, Status: in.Status}, nil
}

func (f *fakeBackend) CreateAlert(_ context.Context, in model.AlertInput) (model.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, in)
	return model.Alert{ID: fmt.Sprintf("al-%d", len(f.alerts)), Message: in.Message, Kind: in.Kind}, nil
}

var fixedNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func newTestDriver(b Backend, opts Options) (*Driver, *[]time.Duration) {
	d := NewDriver(b, opts, zerolog.Nop())
	d.now = func() time.Time { return fixedNow }
	d.rand = rand.New(rand.NewPCG(1, 2))
	var slept []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return ctx.Err()
	}
	return d, &slept
}

func TestRunSeedsRosterAttendanceAndAlerts(t *testing.T) {
	b := newFakeBackend()
	d, slept := newTestDriver(b, Options{WithStatuses: true, WithAlerts: true, Pace: time.Millisecond, Settle: 5 * time.Second})

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 10, res.Students)
	assert.Equal(t, 0, res.Reused)
	assert.Equal(t, 5, res.Alerts)
	assert.Empty(t, res.Errors)
	assert.Equal(t, len(b.attendance), res.AttendanceRecords)
	assert.GreaterOrEqual(t, res.AttendanceRecords, 20)
	assert.LessOrEqual(t, res.AttendanceRecords, 40)
	assert.Contains(t, *slept, 5*time.Second)

	earliest := fixedNow.AddDate(0, 0, -6).Format("2006-01-02")
	perStudent := map[string]int{}
	for _, in := range b.attendance {
		perStudent[in.StudentRef]++
		assert.GreaterOrEqual(t, in.Date, earliest)
		assert.LessOrEqual(t, in.Date, "2024-05-15")
		assert.GreaterOrEqual(t, in.Time, "08:00:00")
		assert.LessOrEqual(t, in.Time, "10:59:59")
		assert.Contains(t, []model.Status{model.Present, model.Late}, in.Status)
	}
	require.Len(t, perStudent, 10)
	for ref, n := range perStudent {
		assert.Contains(t, ref, "id-STU0")
		assert.GreaterOrEqual(t, n, 2)
		assert.LessOrEqual(t, n, 4)
	}
	for _, in := range b.alerts {
		assert.Equal(t, model.AlertUnknownFace, in.Kind)
	}
	assert.Equal(t, "45 succeeded, 0 failed", Result{Students: 10, AttendanceRecords: 30, Alerts: 5}.Summary())
}

func TestRunReusesExistingStudents(t *testing.T) {
	b := newFakeBackend()
	b.roster = []model.Student{
		{ID: "x1", Name: "Someone", ExternalCode: "STU001"},
		{ID: "x2", Name: "Maria Garcia", ExternalCode: "M-2"},
	}
	d, _ := newTestDriver(b, Options{})

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Reused)
	assert.Equal(t, 8, res.Students)
	assert.Equal(t, 0, res.Alerts)
	assert.Zero(t, b.attempts["STU001"])
	assert.Zero(t, b.attempts["STU002"])

	refs := map[string]bool{}
	for _, in := range b.attendance {
		refs[in.StudentRef] = true
		assert.Equal(t, model.Present, in.Status)
	}
	assert.True(t, refs["x1"])
	assert.True(t, refs["x2"])
}

func TestRunPartialFailure(t *testing.T) {
	b := newFakeBackend()
	b.failStudent["STU003"] = -1
	b.failStudent["STU004"] = 2
	d, _ := newTestDriver(b, Options{})

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, res.Students)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Student Ahmed Khan")
	assert.Contains(t, res.Errors[0], "backend rejected STU003")
	assert.Equal(t, 3, b.attempts["STU003"])
	assert.Equal(t, 3, b.attempts["STU004"])
	assert.Contains(t, res.Summary(), "1 failed")
}

func TestRunRejectsInvalidInputWithoutCalling(t *testing.T) {
	b := newFakeBackend()
	d, _ := newTestDriver(b, Options{Students: []model.StudentInput{{Name: "", ExternalCode: "STU099"}, {Name: "Valid", ExternalCode: "STU100"}}})

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Students)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "invalid student input")
	assert.Zero(t, b.attempts["STU099"])
}

func TestRunRejectsBlankStudentNames(t *testing.T) {
	b := newFakeBackend()
	d, _ := newTestDriver(b, Options{Students: []model.StudentInput{{Name: "   ", ExternalCode: "STU099"}, {Name: "Ana", ExternalCode: "\t"}}})

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Students)
	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.Contains(t, e, "notblank")
	}
	assert.Zero(t, b.attempts["STU099"])
	assert.Empty(t, b.students)
}

func TestCreateAttendanceValidatesWallClock(t *testing.T) {
	valid := model.AttendanceInput{StudentRef: "id-STU001", Name: "John Smith", Date: "2024-05-15", Time: "08:05:09"}
	cases := map[string]func(in *model.AttendanceInput){
		"one digit hour":  func(in *model.AttendanceInput) { in.Time = "8:05:09" },
		"minutes only":    func(in *model.AttendanceInput) { in.Time = "08:05" },
		"hour overflow":   func(in *model.AttendanceInput) { in.Time = "25:00:00" },
		"slashed date":    func(in *model.AttendanceInput) { in.Date = "2024/05/15" },
		"missing date":    func(in *model.AttendanceInput) { in.Date = "" },
		"blank reference": func(in *model.AttendanceInput) { in.StudentRef = "  " },
		"blank name":      func(in *model.AttendanceInput) { in.Name = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := newFakeBackend()
			d, _ := newTestDriver(b, Options{})
			in := valid
			mutate(&in)

			_, err := d.createAttendance(context.Background(), in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid attendance input")
			assert.Empty(t, b.attendance)
		})
	}

	b := newFakeBackend()
	d, _ := newTestDriver(b, Options{})
	_, err := d.createAttendance(context.Background(), valid)
	require.NoError(t, err)
	assert.Len(t, b.attendance, 1)
}

func TestRunRosterFailureAborts(t *testing.T) {
	b := newFakeBackend()
	b.rosterErr = errors.New("unauthorized")
	d, _ := newTestDriver(b, Options{})

	res, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	require.Len(t, res.Errors, 1)
	assert.Empty(t, b.students)
}

func TestRunRefusesConcurrentRuns(t *testing.T) {
	d, _ := newTestDriver(newFakeBackend(), Options{})
	d.running.Store(true)
	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, ErrSeedInProgress)
}

func TestRunStopsOnCancel(t *testing.T) {
	b := newFakeBackend()
	d, _ := newTestDriver(b, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.students)
}
