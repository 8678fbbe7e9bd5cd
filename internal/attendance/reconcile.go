package attendance

import "attendboard/internal/model"

// DayBucket groups one day's captures by owning student.
type DayBucket struct {
	Day              DayKey
	RecordsByStudent map[string][]model.AttendanceRecord
	Unresolved       []model.AttendanceRecord
}

// Bucket resolves every record and groups it under its student id.
// The caller is responsible for passing only records of day.
func (r *Roster) Bucket(day DayKey, records []model.AttendanceRecord) DayBucket {
	b := DayBucket{Day: day, RecordsByStudent: make(map[string][]model.AttendanceRecord)}
	for _, rec := range records {
		id := r.Resolve(rec)
		if !id.Resolved() {
			b.Unresolved = append(b.Unresolved, rec)
			continue
		}
		b.RecordsByStudent[*id.StudentID] = append(b.RecordsByStudent[*id.StudentID], rec)
	}
	return b
}

// Reconciliation holds one status per roster student for a day.
type Reconciliation struct {
	Day               DayKey
	Statuses          map[string]model.Status
	UnresolvedCount   int
	UnresolvedRecords []model.AttendanceRecord
}

// Tally counts statuses. The three counts always sum to the roster size.
func (r Reconciliation) Tally() (present, late, absent int) {
	for _, st := range r.Statuses {
		switch st {
		case model.Present:
			present++
		case model.Late:
			late++
		default:
			absent++
		}
	}
	return present, late, absent
}

// Reconcile determines each student's status for day with precedence Present > Late > Absent.
// Students without captures are Absent; captures matching nobody are reported as unresolved.
func (r *Roster) Reconcile(day DayKey, recordsForDay []model.AttendanceRecord) Reconciliation {
	bucket := r.Bucket(day, recordsForDay)
	out := Reconciliation{
		Day:               day,
		Statuses:          make(map[string]model.Status, len(r.students)),
		UnresolvedCount:   len(bucket.Unresolved),
		UnresolvedRecords: bucket.Unresolved,
	}
	for _, s := range r.students {
		best := model.Absent
		for _, rec := range bucket.RecordsByStudent[s.ID] {
			if rec.Status.Outranks(best) {
				best = rec.Status
			}
		}
		out.Statuses[s.ID] = best
	}
	return out
}

// Reconcile validates roster and reconciles recordsForDay against it.
func Reconcile(day DayKey, roster []model.Student, recordsForDay []model.AttendanceRecord) (Reconciliation, error) {
	r, err := NewRoster(roster)
	if err != nil {
		return Reconciliation{}, err
	}
	return r.Reconcile(day, recordsForDay), nil
}
