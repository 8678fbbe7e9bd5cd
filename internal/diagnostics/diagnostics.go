package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"attendboard/internal/faceclient"
	"attendboard/internal/gqlclient"
	"attendboard/internal/model"
)

// Backend is what the connectivity checks need from the GraphQL client.
type Backend interface {
	Ping(ctx context.Context) error
	FetchRoster(ctx context.Context) ([]model.Student, error)
	FetchAttendance(ctx context.Context, rng *model.TimeRange) ([]model.AttendanceRecord, error)
}

// FaceProbe reports face service health.
type FaceProbe interface {
	Health(ctx context.Context) (*faceclient.HealthReport, error)
}

// Writer is the create side of the backend, used by the opt-in write check.
type Writer interface {
	CreateStudent(ctx context.Context, in model.StudentInput) (model.Student, error)
	CreateAttendanceRecord(ctx context.Context, in model.AttendanceInput) (model.AttendanceRecord, error)
}

// Pinger is anything with a connectivity check, e.g. the summary archive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result is one diagnostic check outcome.
type Result struct {
	Test      string    `json:"test"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Line renders the result in the plain-text log format.
func (r Result) Line() string {
	verdict := "FAIL"
	if r.Success {
		verdict = "PASS"
	}
	line := fmt.Sprintf("[%s] %s: %s - %s", r.Timestamp.UTC().Format(time.RFC3339), r.Test, verdict, r.Message)
	if r.Details != nil {
		if b, err := json.Marshal(r.Details); err == nil {
			line += " (" + string(b) + ")"
		}
	}
	return line
}

// Report is a full diagnostics run.
type Report struct {
	RunID   string   `json:"run_id"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
	Results []Result `json:"results"`
	Log     string   `json:"log"`
}

// Config describes what was configured, for the first check.
type Config struct {
	Endpoint  string
	Schema    gqlclient.Schema
	APIKeySet bool
}

// Runner executes the checks in a fixed order.
type Runner struct {
	cfg     Config
	backend Backend
	face    FaceProbe
	cache   *redis.Client
	archive Pinger
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRunner wires the checks. face, cache and archive may be nil.
func NewRunner(cfg Config, backend Backend, face FaceProbe, cache *redis.Client, archive Pinger, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		backend: backend,
		face:    face,
		cache:   cache,
		archive: archive,
		logger:  logger.With().Str("component", "diagnostics").Logger(),
		now:     time.Now,
	}
}

type check struct {
	name string
	run  func(ctx context.Context) (string, any, error)
}

// Run executes every read-only check; a failing check never stops the ones after it.
func (r *Runner) Run(ctx context.Context) Report {
	return r.run(ctx, r.readChecks())
}

// RunWrite runs the read-only checks, then creates one test student and one
// attendance row through w. The rows are left in the backend.
func (r *Runner) RunWrite(ctx context.Context, w Writer) Report {
	checks := append(r.readChecks(), check{"Write Access", func(ctx context.Context) (string, any, error) {
		return r.checkWrite(ctx, w)
	}})
	return r.run(ctx, checks)
}

func (r *Runner) readChecks() []check {
	return []check{
		{"Config", r.checkConfig},
		{"GraphQL Connection", r.checkConnection},
		{"API Permissions", r.checkPermissions},
		{"Face Service", r.checkFace},
		{"Cache", r.checkCache},
		{"Archive", r.checkArchive},
	}
}

func (r *Runner) run(ctx context.Context, checks []check) Report {
	rep := Report{RunID: uuid.NewString(), Results: make([]Result, 0, len(checks))}
	lines := make([]string, 0, len(checks))
	for _, c := range checks {
		msg, details, err := c.run(ctx)
		res := Result{Test: c.name, Success: err == nil, Message: msg, Details: details, Timestamp: r.now().UTC()}
		if err != nil {
			res.Message = err.Error()
			rep.Failed++
			r.logger.Warn().Str("run_id", rep.RunID).Str("test", c.name).Err(err).Msg("diagnostic failed")
		} else {
			rep.Passed++
		}
		rep.Results = append(rep.Results, res)
		lines = append(lines, res.Line())
	}
	rep.Log = strings.Join(lines, "\n")
	r.logger.Info().Str("run_id", rep.RunID).Int("passed", rep.Passed).Int("failed", rep.Failed).Msg("diagnostics finished")
	return rep
}

func (r *Runner) checkConfig(context.Context) (string, any, error) {
	details := map[string]any{"endpoint": r.cfg.Endpoint, "schema": r.cfg.Schema, "api_key_set": r.cfg.APIKeySet}
	if r.cfg.Endpoint == "" {
		return "", details, gqlclient.ErrEndpointMissing
	}
	return "GraphQL endpoint configured", details, nil
}

func (r *Runner) checkConnection(ctx context.Context) (string, any, error) {
	start := time.Now()
	if err := r.backend.Ping(ctx); err != nil {
		return "", nil, fmt.Errorf("connection failed: %w", err)
	}
	return "GraphQL endpoint reachable", map[string]any{"latency_ms": time.Since(start).Milliseconds()}, nil
}

func (r *Runner) checkPermissions(ctx context.Context) (string, any, error) {
	roster, err := r.backend.FetchRoster(ctx)
	if err != nil {
		return "", nil, permissionError("roster", err)
	}
	records, err := r.backend.FetchAttendance(ctx, nil)
	if err != nil {
		return "", map[string]any{"students": len(roster)}, permissionError("attendance", err)
	}
	return "Read access to roster and attendance", map[string]any{"students": len(roster), "attendance": len(records)}, nil
}

func permissionError(what string, err error) error {
	var respErr *gqlclient.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("%s read rejected: %w", what, err)
	}
	return fmt.Errorf("%s read failed: %w", what, err)
}

func (r *Runner) checkFace(ctx context.Context) (string, any, error) {
	if r.face == nil {
		return "Face service not configured, skipped", map[string]any{"skipped": true}, nil
	}
	rep, err := r.face.Health(ctx)
	if err != nil {
		return "", nil, err
	}
	if !rep.Reachable {
		return "Face service check skipped", map[string]any{"skipped": true}, nil
	}
	return "Face service healthy", rep, nil
}

func (r *Runner) checkCache(ctx context.Context) (string, any, error) {
	if r.cache == nil {
		return "Cache not configured, skipped", map[string]any{"skipped": true}, nil
	}
	if err := r.cache.Ping(ctx).Err(); err != nil {
		return "", nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return "Redis reachable", nil, nil
}

func (r *Runner) checkArchive(ctx context.Context) (string, any, error) {
	if r.archive == nil {
		return "Archive not configured, skipped", map[string]any{"skipped": true}, nil
	}
	if err := r.archive.Ping(ctx); err != nil {
		return "", nil, fmt.Errorf("archive database unreachable: %w", err)
	}
	return "Archive database reachable", nil, nil
}

func (r *Runner) checkWrite(ctx context.Context, w Writer) (string, any, error) {
	now := r.now().UTC()
	st, err := w.CreateStudent(ctx, model.StudentInput{
		Name:         fmt.Sprintf("Test Student %d", now.Unix()),
		ExternalCode: fmt.Sprintf("TEST%06d", now.UnixMilli()%1000000),
	})
	if err != nil {
		return "", nil, fmt.Errorf("create student failed: %w", err)
	}
	rec, err := w.CreateAttendanceRecord(ctx, model.AttendanceInput{
		StudentRef: st.ID,
		Name:       st.Name,
		Date:       now.Format("2006-01-02"),
		Time:       now.Format("15:04:05"),
		Status:     model.Present,
		Image:      fmt.Sprintf("test_capture_%d.jpg", now.Unix()),
	})
	details := map[string]any{"student_id": st.ID, "student_code": st.ExternalCode}
	if err != nil {
		return "", details, fmt.Errorf("create attendance failed: %w", err)
	}
	details["attendance_id"] = rec.ID
	return "Can create students and attendance records", details, nil
}
