package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"attendboard/internal/model"
)

// Repository archives daily reconciliations in SQL. Queries use $n placeholders,
// which both Postgres (pgx) and SQLite accept.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InitSchema ensures the archive table exists.
func (r *Repository) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_summaries (
			day            TEXT PRIMARY KEY,
			total_students INTEGER NOT NULL,
			present        INTEGER NOT NULL,
			late           INTEGER NOT NULL,
			absent         INTEGER NOT NULL,
			unresolved     INTEGER NOT NULL DEFAULT 0,
			recorded_at    TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("archive database not configured")
	}
	return r.db.PingContext(ctx)
}

// UpsertSummary writes or replaces the summary of one day.
func (r *Repository) UpsertSummary(ctx context.Context, s model.DailySummary) error {
	if s.Day == "" {
		return errors.New("summary day required")
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_summaries (day, total_students, present, late, absent, unresolved, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (day) DO UPDATE SET
			total_students = EXCLUDED.total_students,
			present = EXCLUDED.present,
			late = EXCLUDED.late,
			absent = EXCLUDED.absent,
			unresolved = EXCLUDED.unresolved,
			recorded_at = EXCLUDED.recorded_at
	`, s.Day, s.TotalStudents, s.Present, s.Late, s.Absent, s.Unresolved, s.RecordedAt.UTC())
	return err
}

// ListSummaries returns archived days in [from, to], ascending. Empty bounds are open.
func (r *Repository) ListSummaries(ctx context.Context, from, to string) ([]model.DailySummary, error) {
	if from == "" {
		from = "0000-01-01"
	}
	if to == "" {
		to = "9999-12-31"
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, total_students, present, late, absent, unresolved, recorded_at
		FROM daily_summaries
		WHERE day >= $1 AND day <= $2
		ORDER BY day ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []model.DailySummary{}
	for rows.Next() {
		var s model.DailySummary
		if err := rows.Scan(&s.Day, &s.TotalStudents, &s.Present, &s.Late, &s.Absent, &s.Unresolved, &s.RecordedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
