package attendance

import "attendboard/internal/model"

// UnknownStudent is the display name for captures that match no roster entry.
const UnknownStudent = "Unknown Student"

// ResolvedIdentity is the owner of a capture. StudentID is nil when unmatched.
type ResolvedIdentity struct {
	StudentID   *string `json:"student_id"`
	DisplayName string  `json:"display_name"`
}

// Resolved reports whether the capture matched a student.
func (r ResolvedIdentity) Resolved() bool { return r.StudentID != nil }

func unknown() ResolvedIdentity {
	return ResolvedIdentity{DisplayName: UnknownStudent}
}

func resolvedTo(s model.Student) ResolvedIdentity {
	id := s.ID
	return ResolvedIdentity{StudentID: &id, DisplayName: s.Name}
}

// Resolve matches rec.StudentRef against student ids first, then external codes.
// The first match in roster order wins.
func Resolve(rec model.AttendanceRecord, roster []model.Student) ResolvedIdentity {
	if rec.StudentRef == "" {
		return unknown()
	}
	for _, s := range roster {
		if s.ID == rec.StudentRef {
			return resolvedTo(s)
		}
	}
	for _, s := range roster {
		if s.ExternalCode != "" && s.ExternalCode == rec.StudentRef {
			return resolvedTo(s)
		}
	}
	return unknown()
}

// Roster is an indexed, validated roster snapshot. It answers Resolve without rescanning.
type Roster struct {
	students []model.Student
	byID     map[string]int
	byCode   map[string]int
}

// NewRoster indexes students. Empty or duplicate ids are an InvariantViolation.
func NewRoster(students []model.Student) (*Roster, error) {
	r := &Roster{
		students: students,
		byID:     make(map[string]int, len(students)),
		byCode:   make(map[string]int, len(students)),
	}
	for i, s := range students {
		if s.ID == "" {
			return nil, violation("roster.id", "student at position %d has an empty id", i)
		}
		if prev, dup := r.byID[s.ID]; dup {
			return nil, violation("roster.id", "student id %q appears at positions %d and %d", s.ID, prev, i)
		}
		r.byID[s.ID] = i
		if s.ExternalCode == "" {
			continue
		}
		if _, seen := r.byCode[s.ExternalCode]; !seen {
			r.byCode[s.ExternalCode] = i
		}
	}
	return r, nil
}

// Len is the number of students.
func (r *Roster) Len() int { return len(r.students) }

// Students returns the snapshot in roster order.
func (r *Roster) Students() []model.Student { return r.students }

// Resolve has the same semantics as the package-level Resolve.
func (r *Roster) Resolve(rec model.AttendanceRecord) ResolvedIdentity {
	if rec.StudentRef == "" {
		return unknown()
	}
	if i, ok := r.byID[rec.StudentRef]; ok {
		return resolvedTo(r.students[i])
	}
	if i, ok := r.byCode[rec.StudentRef]; ok {
		return resolvedTo(r.students[i])
	}
	return unknown()
}
