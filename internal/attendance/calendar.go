package attendance

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// ZonePolicy fixes the time zone used to turn instants into calendar days.
// The zero value is UTC.
type ZonePolicy struct {
	loc *time.Location
}

// UTC is the default policy.
func UTC() ZonePolicy {
	return ZonePolicy{loc: time.UTC}
}

// NewZonePolicy loads an IANA zone name ("UTC", "Asia/Kolkata", ...).
func NewZonePolicy(name string) (ZonePolicy, error) {
	if name == "" {
		return UTC(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return ZonePolicy{}, fmt.Errorf("load zone %q: %w", name, err)
	}
	return ZonePolicy{loc: loc}, nil
}

// FixedZone builds a policy with a constant offset, mostly for tests.
func FixedZone(name string, offsetSeconds int) ZonePolicy {
	return ZonePolicy{loc: time.FixedZone(name, offsetSeconds)}
}

// Location returns the zone, never nil.
func (z ZonePolicy) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

func (z ZonePolicy) String() string {
	return z.Location().String()
}

// DayKey is a calendar date formatted as YYYY-MM-DD.
type DayKey string

// ParseDayKey validates a YYYY-MM-DD string.
func ParseDayKey(s string) (DayKey, error) {
	if _, err := time.Parse(dayLayout, s); err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayKey(s), nil
}

// DayKeyOf returns the calendar day containing ts under the zone policy.
func DayKeyOf(ts time.Time, zone ZonePolicy) DayKey {
	return DayKey(ts.In(zone.Location()).Format(dayLayout))
}

func (d DayKey) String() string { return string(d) }

// civil is the date at midnight UTC; day arithmetic happens here so DST never shifts a key.
func (d DayKey) civil() time.Time {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Weekday of the calendar date.
func (d DayKey) Weekday() time.Weekday {
	return d.civil().Weekday()
}

// AddDays moves the key by n calendar days.
func (d DayKey) AddDays(n int) DayKey {
	return DayKey(d.civil().AddDate(0, 0, n).Format(dayLayout))
}

// Range is the half-open interval of instants belonging to the day in zone.
func (d DayKey) Range(zone ZonePolicy) (time.Time, time.Time) {
	c := d.civil()
	start := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, zone.Location())
	next := time.Date(c.Year(), c.Month(), c.Day()+1, 0, 0, 0, 0, zone.Location())
	return start, next
}

// WeekdayBucket is one slot of a weekday-only window.
type WeekdayBucket struct {
	DayKey  DayKey `json:"day_key"`
	Weekday string `json:"weekday"`
}

func isWeekend(wd time.Weekday) bool {
	return wd == time.Saturday || wd == time.Sunday
}

// WeekdayBucketsTrailing returns the n most recent Monday-Friday days ending at or before the day
// containing ref, oldest first. A weekend reference day is skipped, not counted.
func WeekdayBucketsTrailing(n int, ref time.Time, zone ZonePolicy) []WeekdayBucket {
	if n <= 0 {
		return []WeekdayBucket{}
	}
	out := make([]WeekdayBucket, n)
	day := DayKeyOf(ref, zone)
	for i := n - 1; i >= 0; {
		wd := day.Weekday()
		if !isWeekend(wd) {
			out[i] = WeekdayBucket{DayKey: day, Weekday: wd.String()}
			i--
		}
		day = day.AddDays(-1)
	}
	return out
}

// WeekOf returns Monday through Friday of the week containing day.
func WeekOf(day DayKey) []WeekdayBucket {
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	monday := day.AddDays(-offset)
	out := make([]WeekdayBucket, 0, 5)
	for i := 0; i < 5; i++ {
		d := monday.AddDays(i)
		out = append(out, WeekdayBucket{DayKey: d, Weekday: d.Weekday().String()})
	}
	return out
}
