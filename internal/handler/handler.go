package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"attendboard/internal/attendance"
	"attendboard/internal/diagnostics"
	"attendboard/internal/gqlclient"
	"attendboard/internal/jobs"
	"attendboard/internal/model"
	"attendboard/internal/queue"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Dashboard   *attendance.Service
	Backend     diagnostics.Backend
	Diagnostics *diagnostics.Runner
	Queue       queue.Queue
	SeedResults *jobs.ResultStore
	Health      map[string]HealthCheck
	Logger      zerolog.Logger
}

type Handler struct {
	dash        *attendance.Service
	backend     diagnostics.Backend
	diag        *diagnostics.Runner
	queue       queue.Queue
	seedResults *jobs.ResultStore
	health      map[string]HealthCheck
	logger      zerolog.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		dash:        d.Dashboard,
		backend:     d.Backend,
		diag:        d.Diagnostics,
		queue:       d.Queue,
		seedResults: d.SeedResults,
		health:      d.Health,
		logger:      d.Logger.With().Str("component", "http").Logger(),
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Dashboard ----------

func (h *Handler) Overview(c *gin.Context) {
	ov, err := h.dash.Overview(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.dash.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Chart(c *gin.Context) {
	days := 0
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 60 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 60"})
			return
		}
		days = parsed
	}
	series, err := h.dash.Chart(c.Request.Context(), days)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": series})
}

func (h *Handler) Weekly(c *gin.Context) {
	report, err := h.dash.WeeklyRate(c.Request.Context(), attendance.DayKey(c.Query("week")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ---------- Attendance & Alerts ----------

func (h *Handler) ListAttendance(c *gin.Context) {
	period := attendance.Period(c.DefaultQuery("period", string(attendance.PeriodToday)))
	switch period {
	case attendance.PeriodToday, attendance.PeriodYesterday, attendance.PeriodLast7, attendance.PeriodMonth:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be one of today, yesterday, last7, month"})
		return
	}
	rows, err := h.dash.Attendance(c.Request.Context(), period, c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "records": rows})
}

func (h *Handler) ListAlerts(c *gin.Context) {
	alerts, err := h.dash.Alerts(c.Request.Context(), model.AlertKind(c.Query("kind")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// ---------- Admin ----------

func (h *Handler) DatabaseStatus(c *gin.Context) {
	c.JSON(http.StatusOK, diagnostics.Status(c.Request.Context(), h.backend, h.dash.Zone()))
}

// Diagnostics runs every connectivity check. ?format=text returns the plain log;
// ?write=1 also creates a test student and attendance row.
func (h *Handler) Diagnostics(c *gin.Context) {
	var rep diagnostics.Report
	if write, _ := strconv.ParseBool(c.DefaultQuery("write", "false")); write {
		w, ok := h.backend.(diagnostics.Writer)
		if !ok {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "backend does not support writes"})
			return
		}
		rep = h.diag.RunWrite(c.Request.Context(), w)
	} else {
		rep = h.diag.Run(c.Request.Context())
	}
	if c.Query("format") == "text" {
		c.String(http.StatusOK, rep.Log+"\n")
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) StartSeed(c *gin.Context) {
	id, err := jobs.Enqueue(c.Request.Context(), h.queue, queue.TypeSeed)
	if err != nil {
		h.logger.Error().Err(err).Msg("queue publish failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not enqueue seed job"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "type": queue.TypeSeed})
}

func (h *Handler) LastSeed(c *gin.Context) {
	res, ok, err := h.seedResults.Last(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no seed run recorded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "summary": res.Summary()})
}

// ---------- Reports ----------

func (h *Handler) Snapshot(c *gin.Context) {
	summary, err := h.dash.Snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (h *Handler) DailyHistory(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	for _, v := range []string{from, to} {
		if v == "" {
			continue
		}
		if _, err := attendance.ParseDayKey(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	days, err := h.dash.History(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// fail maps domain errors to status codes; anything else is a backend failure.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, attendance.ErrInvalidWeek):
		status = http.StatusBadRequest
	case errors.Is(err, attendance.ErrArchiveDisabled), errors.Is(err, gqlclient.ErrEndpointMissing):
		status = http.StatusServiceUnavailable
	}
	h.logger.Warn().Err(err).Int("status", status).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}
