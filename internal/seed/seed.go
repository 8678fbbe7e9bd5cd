package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"attendboard/internal/metrics"
	"attendboard/internal/model"
)

// ErrSeedInProgress is returned when a run is started while another is active.
var ErrSeedInProgress = errors.New("seed already in progress")

var validate = newValidator()

// newValidator adds notblank, so whitespace-only names and references are rejected.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Backend is the write side of the attendance backend plus the roster read.
type Backend interface {
	FetchRoster(ctx context.Context) ([]model.Student, error)
	CreateStudent(ctx context.Context, in model.StudentInput) (model.Student, error)
	CreateAttendanceRecord(ctx context.Context, in model.AttendanceInput) (model.AttendanceRecord, error)
	CreateAlert(ctx context.Context, in model.AlertInput) (model.Alert, error)
}

// Options tune retries and pacing.
type Options struct {
	Retries    int
	RetryDelay time.Duration
	// Pace is the pause after every successful create.
	Pace time.Duration
	// Settle is the pause between the student and attendance phases.
	Settle time.Duration
	// WithStatuses mixes Present and Late rows; otherwise every row is a presence capture.
	WithStatuses bool
	WithAlerts   bool
	Students     []model.StudentInput
}

// Result reports a run. Errors holds one entry per failed item.
type Result struct {
	RunID             string    `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Students          int       `json:"students"`
	Reused            int       `json:"reused"`
	AttendanceRecords int       `json:"attendance_records"`
	Alerts            int       `json:"alerts"`
	Errors            []string  `json:"errors"`
}

// Summary renders "N succeeded, M failed".
func (r Result) Summary() string {
	ok := r.Students + r.AttendanceRecords + r.Alerts
	return fmt.Sprintf("%d succeeded, %d failed", ok, len(r.Errors))
}

// Driver seeds demo data one call at a time.
type Driver struct {
	backend Backend
	opts    Options
	logger  zerolog.Logger
	running atomic.Bool

	now   func() time.Time
	rand  *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDriver builds a driver. Zero retries means three attempts.
func NewDriver(backend Backend, opts Options, logger zerolog.Logger) *Driver {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if len(opts.Students) == 0 {
		opts.Students = SampleStudents
	}
	return &Driver{
		backend: backend,
		opts:    opts,
		logger:  logger.With().Str("component", "seed_driver").Logger(),
		now:     time.Now,
		rand:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		sleep:   sleepCtx,
	}
}

// Run seeds students, then their attendance rows, then alerts. Item failures are
// collected in the result; only an unreadable roster or cancellation aborts.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Result{}, ErrSeedInProgress
	}
	defer d.running.Store(false)

	res := Result{RunID: uuid.NewString(), StartedAt: d.now().UTC(), Errors: []string{}}
	log := d.logger.With().Str("run_id", res.RunID).Logger()
	log.Info().Int("students", len(d.opts.Students)).Msg("seeding started")

	existing, err := retry(ctx, d, "roster", func() ([]model.Student, error) { return d.backend.FetchRoster(ctx) })
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Critical error: %v", err))
		res.FinishedAt = d.now().UTC()
		return res, fmt.Errorf("read roster: %w", err)
	}

	ready := make([]model.Student, 0, len(d.opts.Students))
	for _, in := range d.opts.Students {
		if ctx.Err() != nil {
			return d.finish(res, ctx.Err())
		}
		if st, ok := findExisting(existing, in); ok {
			log.Debug().Str("student", in.Name).Msg("student exists, reusing")
			ready = append(ready, st)
			res.Reused++
			continue
		}
		st, err := d.createStudent(ctx, in)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Student %s: %v", in.Name, err))
			metrics.SeedItems().WithLabelValues("student", "error").Inc()
			continue
		}
		metrics.SeedItems().WithLabelValues("student", "ok").Inc()
		ready = append(ready, st)
		res.Students++
		_ = d.sleep(ctx, d.opts.Pace)
	}

	if err := d.sleep(ctx, d.opts.Settle); err != nil {
		return d.finish(res, err)
	}
	if verified, err := d.backend.FetchRoster(ctx); err != nil {
		log.Warn().Err(err).Msg("roster re-read failed")
	} else {
		log.Info().Int("students", len(verified)).Msg("roster verified")
	}

	for _, st := range ready {
		n := 2 + d.rand.IntN(3)
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return d.finish(res, ctx.Err())
			}
			in := d.attendanceFor(st)
			if _, err := d.createAttendance(ctx, in); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("Attendance for %s: %v", st.Name, err))
				metrics.SeedItems().WithLabelValues("attendance", "error").Inc()
				continue
			}
			metrics.SeedItems().WithLabelValues("attendance", "ok").Inc()
			res.AttendanceRecords++
			_ = d.sleep(ctx, d.opts.Pace)
		}
	}

	if d.opts.WithAlerts {
		for _, msg := range UnknownFaceMessages {
			if ctx.Err() != nil {
				return d.finish(res, ctx.Err())
			}
			in := d.alertFor(msg)
			if _, err := d.createAlert(ctx, in); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("Alert %q: %v", msg, err))
				metrics.SeedItems().WithLabelValues("alert", "error").Inc()
				continue
			}
			metrics.SeedItems().WithLabelValues("alert", "ok").Inc()
			res.Alerts++
			_ = d.sleep(ctx, d.opts.Pace)
		}
	}

	return d.finish(res, nil)
}

func (d *Driver) finish(res Result, err error) (Result, error) {
	res.FinishedAt = d.now().UTC()
	ev := d.logger.Info()
	if len(res.Errors) > 0 || err != nil {
		ev = d.logger.Warn()
	}
	ev.Str("run_id", res.RunID).
		Int("students", res.Students).
		Int("reused", res.Reused).
		Int("attendance", res.AttendanceRecords).
		Int("alerts", res.Alerts).
		Int("errors", len(res.Errors)).
		Msg("seeding finished: " + res.Summary())
	return res, err
}

func (d *Driver) createStudent(ctx context.Context, in model.StudentInput) (model.Student, error) {
	if err := validate.Struct(in); err != nil {
		return model.Student{}, fmt.Errorf("invalid student input: %w", err)
	}
	return retry(ctx, d, "student "+in.ExternalCode, func() (model.Student, error) {
		return d.backend.CreateStudent(ctx, in)
	})
}

func (d *Driver) createAttendance(ctx context.Context, in model.AttendanceInput) (model.AttendanceRecord, error) {
	if err := validate.Struct(in); err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("invalid attendance input: %w", err)
	}
	return retry(ctx, d, "attendance "+in.StudentRef, func() (model.AttendanceRecord, error) {
		return d.backend.CreateAttendanceRecord(ctx, in)
	})
}

func (d *Driver) createAlert(ctx context.Context, in model.AlertInput) (model.Alert, error) {
	if err := validate.Struct(in); err != nil {
		return model.Alert{}, fmt.Errorf("invalid alert input: %w", err)
	}
	return retry(ctx, d, "alert", func() (model.Alert, error) {
		return d.backend.CreateAlert(ctx, in)
	})
}

// attendanceFor picks a capture in the last seven days between 08:00 and 10:59 UTC.
func (d *Driver) attendanceFor(st model.Student) model.AttendanceInput {
	day := d.now().UTC().AddDate(0, 0, -d.rand.IntN(7))
	at := time.Date(day.Year(), day.Month(), day.Day(), 8+d.rand.IntN(3), d.rand.IntN(60), d.rand.IntN(60), 0, time.UTC)
	status := model.Present
	if d.opts.WithStatuses && d.rand.IntN(2) == 1 {
		status = model.Late
	}
	return model.AttendanceInput{
		StudentRef: st.ID,
		Name:       st.Name,
		Date:       at.Format("2006-01-02"),
		Time:       at.Format("15:04:05"),
		Status:     status,
		Image:      fmt.Sprintf("capture_%s_%d_%s.jpg", st.ExternalCode, at.Unix(), uuid.NewString()[:8]),
	}
}

// alertFor stamps an alert today or yesterday during school hours.
func (d *Driver) alertFor(msg string) model.AlertInput {
	day := d.now().UTC().AddDate(0, 0, -d.rand.IntN(2))
	at := time.Date(day.Year(), day.Month(), day.Day(), 8+d.rand.IntN(10), d.rand.IntN(60), 0, 0, time.UTC)
	return model.AlertInput{Message: msg, OccurredAt: at, Kind: model.AlertUnknownFace}
}

func findExisting(roster []model.Student, in model.StudentInput) (model.Student, bool) {
	for _, st := range roster {
		if (st.ExternalCode != "" && st.ExternalCode == in.ExternalCode) || st.Name == in.Name {
			return st, true
		}
	}
	return model.Student{}, false
}

// retry makes up to Retries attempts with a constant delay between them.
func retry[T any](ctx context.Context, d *Driver, item string, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err != nil {
			d.logger.Warn().Err(err).Str("item", item).Int("attempt", attempt).Int("of", d.opts.Retries).Msg("seed call failed")
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(d.opts.RetryDelay)),
		backoff.WithMaxTries(uint(d.opts.Retries)),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
