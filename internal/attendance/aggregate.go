package attendance

import (
	"math"
	"time"

	"attendboard/internal/model"
)

// BucketByDay splits records by calendar day under zone.
func BucketByDay(records []model.AttendanceRecord, zone ZonePolicy) map[DayKey][]model.AttendanceRecord {
	out := make(map[DayKey][]model.AttendanceRecord)
	for _, rec := range records {
		day := DayKeyOf(rec.OccurredAt, zone)
		out[day] = append(out[day], rec)
	}
	return out
}

func statsOf(r *Roster, rec Reconciliation) model.DashboardStats {
	present, late, absent := rec.Tally()
	return model.DashboardStats{
		TotalStudents: r.Len(),
		PresentToday:  present,
		LateToday:     late,
		AbsentToday:   absent,
		Unresolved:    rec.UnresolvedCount,
	}
}

// DashboardStats reconciles today's records and counts each status directly.
func DashboardStats(roster []model.Student, recordsForToday []model.AttendanceRecord) (model.DashboardStats, error) {
	r, err := NewRoster(roster)
	if err != nil {
		return model.DashboardStats{}, err
	}
	return statsOf(r, r.Reconcile("", recordsForToday)), nil
}

// StatsForDay filters all records to day before reconciling.
func StatsForDay(roster []model.Student, all []model.AttendanceRecord, day DayKey, zone ZonePolicy) (model.DashboardStats, error) {
	r, err := NewRoster(roster)
	if err != nil {
		return model.DashboardStats{}, err
	}
	return statsOf(r, r.Reconcile(day, BucketByDay(all, zone)[day])), nil
}

// WeekdayChartSeries produces one point per trailing weekday, oldest first.
func WeekdayChartSeries(n int, roster []model.Student, all []model.AttendanceRecord, ref time.Time, zone ZonePolicy) ([]model.ChartSeriesPoint, error) {
	r, err := NewRoster(roster)
	if err != nil {
		return nil, err
	}
	byDay := BucketByDay(all, zone)
	buckets := WeekdayBucketsTrailing(n, ref, zone)
	points := make([]model.ChartSeriesPoint, 0, len(buckets))
	for _, b := range buckets {
		present, late, absent := r.Reconcile(b.DayKey, byDay[b.DayKey]).Tally()
		points = append(points, model.ChartSeriesPoint{
			Label:   b.Weekday,
			DayKey:  b.DayKey.String(),
			Present: present,
			Absent:  absent,
			Late:    late,
		})
	}
	return points, nil
}

// WeeklyAttendanceRate returns Monday-Friday of the week containing weekStart with
// rate = round(present / total * 100), or 0 for an empty roster.
func WeeklyAttendanceRate(roster []model.Student, all []model.AttendanceRecord, weekStart time.Time, zone ZonePolicy) ([]model.RatePoint, error) {
	r, err := NewRoster(roster)
	if err != nil {
		return nil, err
	}
	byDay := BucketByDay(all, zone)
	week := WeekOf(DayKeyOf(weekStart, zone))
	points := make([]model.RatePoint, 0, len(week))
	for _, b := range week {
		present, _, _ := r.Reconcile(b.DayKey, byDay[b.DayKey]).Tally()
		points = append(points, model.RatePoint{
			Day:    b.Weekday,
			DayKey: b.DayKey.String(),
			Rate:   percent(present, r.Len()),
		})
	}
	return points, nil
}

// OverallRate is the rounded mean of the daily rates.
func OverallRate(points []model.RatePoint) int {
	if len(points) == 0 {
		return 0
	}
	sum := 0
	for _, p := range points {
		sum += p.Rate
	}
	return int(math.Round(float64(sum) / float64(len(points))))
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
