package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"attendboard/internal/metrics"
	"attendboard/internal/model"
)

// ErrArchiveDisabled is returned by snapshot and history calls when no archive is configured.
var ErrArchiveDisabled = errors.New("summary archive not configured")

// ErrInvalidWeek is returned for a week reference that is not a YYYY-MM-DD day.
var ErrInvalidWeek = errors.New("invalid week reference")

// Source is the read side of the attendance backend.
type Source interface {
	FetchRoster(ctx context.Context) ([]model.Student, error)
	FetchAttendance(ctx context.Context, rng *model.TimeRange) ([]model.AttendanceRecord, error)
	FetchAlerts(ctx context.Context) ([]model.Alert, error)
}

// Archive stores reconciled days.
type Archive interface {
	UpsertSummary(ctx context.Context, s model.DailySummary) error
	ListSummaries(ctx context.Context, from, to string) ([]model.DailySummary, error)
}

// Options tune the dashboard service.
type Options struct {
	Zone      ZonePolicy
	ChartDays int
	CacheTTL  time.Duration
	Archive   Archive
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Overview is everything the dashboard landing page renders.
type Overview struct {
	Day              string                   `json:"day"`
	Zone             string                   `json:"zone"`
	Stats            model.DashboardStats     `json:"stats"`
	Chart            []model.ChartSeriesPoint `json:"chart"`
	RecentAttendance []model.AttendanceRow    `json:"recent_attendance"`
	RecentAlerts     []model.Alert            `json:"recent_alerts"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

// WeeklyReport is the attendance-rate series of one week.
type WeeklyReport struct {
	WeekStart string            `json:"week_start"`
	Days      []model.RatePoint `json:"days"`
	Overall   int               `json:"overall"`
}

// Period selects the window of the attendance list.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodLast7     Period = "last7"
	PeriodMonth     Period = "month"
)

const recentLimit = 5

// Service fetches roster and captures and turns them into dashboard view-models.
type Service struct {
	source    Source
	archive   Archive
	cache     *redis.Client
	cacheTTL  time.Duration
	zone      ZonePolicy
	chartDays int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService builds the dashboard service. cache may be nil.
func NewService(source Source, cache *redis.Client, opts Options, logger zerolog.Logger) *Service {
	if opts.ChartDays <= 0 {
		opts.ChartDays = 5
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		source:    source,
		archive:   opts.Archive,
		cache:     cache,
		cacheTTL:  opts.CacheTTL,
		zone:      opts.Zone,
		chartDays: opts.ChartDays,
		logger:    logger.With().Str("component", "dashboard_service").Logger(),
		now:       opts.Now,
	}
}

// Zone exposes the policy used for bucketing.
func (s *Service) Zone() ZonePolicy { return s.zone }

// Today is the current day key under the service zone.
func (s *Service) Today() DayKey { return DayKeyOf(s.now(), s.zone) }

// Overview builds the landing page, served from cache when fresh.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	now := s.now()
	today := DayKeyOf(now, s.zone)
	cacheKey := fmt.Sprintf("dashboard:overview:%s:%s:%d", s.zone, today, s.chartDays)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var ov Overview
			if jsonErr := json.Unmarshal([]byte(cached), &ov); jsonErr == nil {
				metrics.DashboardCache().WithLabelValues("hit").Inc()
				return ov, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}
	metrics.DashboardCache().WithLabelValues("miss").Inc()

	buckets := WeekdayBucketsTrailing(s.chartDays, now, s.zone)
	from, _ := today.Range(s.zone)
	if len(buckets) > 0 {
		from, _ = buckets[0].DayKey.Range(s.zone)
	}
	_, to := today.Range(s.zone)

	roster, records, err := s.load(ctx, &model.TimeRange{From: from, To: to})
	if err != nil {
		return Overview{}, err
	}
	alerts, err := s.source.FetchAlerts(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("fetch alerts: %w", err)
	}

	r, err := NewRoster(roster)
	if err != nil {
		return Overview{}, err
	}
	byDay := BucketByDay(records, s.zone)
	stats := statsOf(r, r.Reconcile(today, byDay[today]))
	metrics.UnresolvedRecords().Set(float64(stats.Unresolved))
	if stats.Unresolved > 0 {
		s.logger.Info().Int("unresolved", stats.Unresolved).Str("day", today.String()).Msg("captures without a roster match")
	}

	chart, err := WeekdayChartSeries(s.chartDays, roster, records, now, s.zone)
	if err != nil {
		return Overview{}, err
	}

	ov := Overview{
		Day:              today.String(),
		Zone:             s.zone.String(),
		Stats:            stats,
		Chart:            chart,
		RecentAttendance: limitRows(s.rows(r, records), recentLimit),
		RecentAlerts:     limitAlerts(sortAlerts(alerts), recentLimit),
		GeneratedAt:      now.UTC(),
	}

	if s.cache != nil {
		if payload, err := json.Marshal(ov); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}
	return ov, nil
}

// Stats returns today's summary counts.
func (s *Service) Stats(ctx context.Context) (model.DashboardStats, error) {
	return s.statsFor(ctx, s.Today())
}

func (s *Service) statsFor(ctx context.Context, day DayKey) (model.DashboardStats, error) {
	from, to := day.Range(s.zone)
	roster, records, err := s.load(ctx, &model.TimeRange{From: from, To: to})
	if err != nil {
		return model.DashboardStats{}, err
	}
	return StatsForDay(roster, records, day, s.zone)
}

// Chart returns the trailing n-weekday series ending today.
func (s *Service) Chart(ctx context.Context, n int) ([]model.ChartSeriesPoint, error) {
	if n <= 0 {
		n = s.chartDays
	}
	now := s.now()
	buckets := WeekdayBucketsTrailing(n, now, s.zone)
	from, _ := buckets[0].DayKey.Range(s.zone)
	_, to := DayKeyOf(now, s.zone).Range(s.zone)
	roster, records, err := s.load(ctx, &model.TimeRange{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return WeekdayChartSeries(n, roster, records, now, s.zone)
}

// WeeklyRate returns Monday-Friday rates of the week containing day; an empty day means this week.
func (s *Service) WeeklyRate(ctx context.Context, day DayKey) (WeeklyReport, error) {
	if day == "" {
		day = s.Today()
	} else if _, err := ParseDayKey(string(day)); err != nil {
		return WeeklyReport{}, fmt.Errorf("%w: %v", ErrInvalidWeek, err)
	}
	week := WeekOf(day)
	from, _ := week[0].DayKey.Range(s.zone)
	_, to := week[len(week)-1].DayKey.Range(s.zone)
	roster, records, err := s.load(ctx, &model.TimeRange{From: from, To: to})
	if err != nil {
		return WeeklyReport{}, err
	}
	points, err := WeeklyAttendanceRate(roster, records, from, s.zone)
	if err != nil {
		return WeeklyReport{}, err
	}
	return WeeklyReport{WeekStart: week[0].DayKey.String(), Days: points, Overall: OverallRate(points)}, nil
}

// Attendance lists captures of the period newest first, joined to display names.
// query filters on display name or student reference, case-insensitively.
func (s *Service) Attendance(ctx context.Context, period Period, query string) ([]model.AttendanceRow, error) {
	rng, err := s.periodRange(period)
	if err != nil {
		return nil, err
	}
	roster, records, err := s.load(ctx, &rng)
	if err != nil {
		return nil, err
	}
	r, err := NewRoster(roster)
	if err != nil {
		return nil, err
	}
	rows := s.rows(r, records)
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return rows, nil
	}
	filtered := rows[:0]
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.DisplayName), query) || strings.Contains(strings.ToLower(row.StudentRef), query) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// Alerts passes alerts through, newest first, optionally narrowed to one kind.
func (s *Service) Alerts(ctx context.Context, kind model.AlertKind) ([]model.Alert, error) {
	alerts, err := s.source.FetchAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}
	alerts = sortAlerts(alerts)
	if kind == "" {
		return alerts, nil
	}
	out := []model.Alert{}
	for _, a := range alerts {
		if strings.EqualFold(string(a.Kind), string(kind)) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Snapshot reconciles today and stores it in the archive.
func (s *Service) Snapshot(ctx context.Context) (model.DailySummary, error) {
	if s.archive == nil {
		return model.DailySummary{}, ErrArchiveDisabled
	}
	now := s.now()
	day := DayKeyOf(now, s.zone)
	stats, err := s.statsFor(ctx, day)
	if err != nil {
		return model.DailySummary{}, err
	}
	summary := model.DailySummary{
		Day:           day.String(),
		TotalStudents: stats.TotalStudents,
		Present:       stats.PresentToday,
		Late:          stats.LateToday,
		Absent:        stats.AbsentToday,
		Unresolved:    stats.Unresolved,
		RecordedAt:    now.UTC(),
	}
	if err := s.archive.UpsertSummary(ctx, summary); err != nil {
		return model.DailySummary{}, fmt.Errorf("archive summary: %w", err)
	}
	s.logger.Info().Str("day", summary.Day).Int("present", summary.Present).Int("late", summary.Late).Int("absent", summary.Absent).Msg("daily summary archived")
	return summary, nil
}

// History lists archived days.
func (s *Service) History(ctx context.Context, from, to string) ([]model.DailySummary, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.ListSummaries(ctx, from, to)
}

func (s *Service) load(ctx context.Context, rng *model.TimeRange) ([]model.Student, []model.AttendanceRecord, error) {
	roster, err := s.source.FetchRoster(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch roster: %w", err)
	}
	records, err := s.source.FetchAttendance(ctx, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch attendance: %w", err)
	}
	// The backend may ignore the filter; the range is applied again here.
	if rng != nil {
		kept := make([]model.AttendanceRecord, 0, len(records))
		for _, rec := range records {
			if rng.Contains(rec.OccurredAt) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}
	return roster, records, nil
}

func (s *Service) periodRange(period Period) (model.TimeRange, error) {
	today := s.Today()
	switch period {
	case "", PeriodToday:
		from, to := today.Range(s.zone)
		return model.TimeRange{From: from, To: to}, nil
	case PeriodYesterday:
		from, to := today.AddDays(-1).Range(s.zone)
		return model.TimeRange{From: from, To: to}, nil
	case PeriodLast7:
		from, _ := today.AddDays(-6).Range(s.zone)
		_, to := today.Range(s.zone)
		return model.TimeRange{From: from, To: to}, nil
	case PeriodMonth:
		first := DayKey(string(today)[:8] + "01")
		from, _ := first.Range(s.zone)
		_, to := today.Range(s.zone)
		return model.TimeRange{From: from, To: to}, nil
	default:
		return model.TimeRange{}, fmt.Errorf("unknown period %q", period)
	}
}

func (s *Service) rows(r *Roster, records []model.AttendanceRecord) []model.AttendanceRow {
	rows := make([]model.AttendanceRow, 0, len(records))
	loc := s.zone.Location()
	for _, rec := range records {
		id := r.Resolve(rec)
		local := rec.OccurredAt.In(loc)
		rows = append(rows, model.AttendanceRow{
			ID:          rec.ID,
			StudentID:   id.StudentID,
			StudentRef:  rec.StudentRef,
			DisplayName: id.DisplayName,
			DayKey:      local.Format(dayLayout),
			Time:        local.Format("15:04:05"),
			OccurredAt:  rec.OccurredAt,
			Status:      rec.Status,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].OccurredAt.After(rows[j].OccurredAt) })
	return rows
}

func sortAlerts(alerts []model.Alert) []model.Alert {
	out := make([]model.Alert, len(alerts))
	copy(out, alerts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out
}

func limitRows(rows []model.AttendanceRow, n int) []model.AttendanceRow {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

func limitAlerts(alerts []model.Alert, n int) []model.Alert {
	if len(alerts) > n {
		return alerts[:n]
	}
	return alerts
}
