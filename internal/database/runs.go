package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var runColumns = []string{
	"id", "kind", "started_at", "finished_at", "status",
	"collected", "briefs", "published", "entries", "error",
}

// StartRun records the start of a job and returns its id.
func (db *DB) StartRun(kind string) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO runs (kind, started_at, status) VALUES (?, ?, ?)",
		kind, formatTime(db.now()), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("starting run: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun records the outcome of a job.
func (db *DB) FinishRun(id int64, o Outcome) error {
	status := o.Status
	var errText *string
	if o.Err != nil {
		msg := o.Err.Error()
		errText = &msg
		if status == "" {
			status = StatusFailed
		}
	}
	if status == "" {
		status = StatusSuccess
	}

	_, err := db.conn.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, collected = ?, briefs = ?,
		published = ?, entries = ?, error = ? WHERE id = ?`,
		formatTime(db.now()), status, o.Collected, o.Briefs, o.Published, o.Entries, errText, id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", id, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. An empty kind lists
// every kind; limit <= 0 means no limit.
func (db *DB) ListRuns(kind string, limit int) ([]Run, error) {
	q := sq.Select(runColumns...).From("runs").OrderBy("started_at DESC", "id DESC")
	if kind != "" {
		q = q.Where(sq.Eq{"kind": kind})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building runs query: %w", err)
	}

	return db.queryRuns(query, args...)
}

// GetRun returns a run by id, or nil if it does not exist.
func (db *DB) GetRun(id int64) (*Run, error) {
	query, args, err := sq.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building run query: %w", err)
	}

	runs, err := db.queryRuns(query, args...)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// GetStats summarizes all recorded runs.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	err := db.conn.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(status = 'success'), 0),
		COALESCE(SUM(status = 'failed'), 0),
		COALESCE(SUM(status = 'skipped'), 0)
		FROM runs`).Scan(&s.Runs, &s.Succeeded, &s.Failed, &s.Skipped)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	last, err := db.ListRuns("", 1)
	if err != nil {
		return nil, err
	}
	if len(last) > 0 {
		s.LastRun = &last[0]
	}
	return s, nil
}

func (db *DB) queryRuns(query string, args ...any) ([]Run, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
			errText  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Kind, &started, &finished, &r.Status,
			&r.Collected, &r.Briefs, &r.Published, &r.Entries, &errText); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		if finished.Valid {
			t := parseTime(finished.String)
			r.FinishedAt = &t
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
