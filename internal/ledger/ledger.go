package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is a unit's outcome in one pass.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusAbstained Status = "abstained"
	StatusFailed    Status = "failed"
)

// Counts tallies outcomes per status.
type Counts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Abstained int `json:"abstained"`
	Failed    int `json:"failed"`
}

// Add records one outcome.
func (c *Counts) Add(status Status) {
	c.Total++
	switch status {
	case StatusCompleted:
		c.Completed++
	case StatusSkipped:
		c.Skipped++
	case StatusAbstained:
		c.Abstained++
	case StatusFailed:
		c.Failed++
	}
}

// Run is one batch pass.
type Run struct {
	RunID        string    `json:"run_id"`
	Branch       string    `json:"branch"`
	ToolVersion  string    `json:"tool_version"`
	Workers      int       `json:"workers"`
	UnitLimit    int       `json:"unit_limit"`
	SessionLimit *int      `json:"session_limit"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	Counts       Counts    `json:"counts"`
	Error        string    `json:"error,omitempty"`
}

// Finished reports whether the pass recorded its end.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// Outcome is one unit's result within a pass.
type Outcome struct {
	RunID             string        `json:"run_id"`
	UnitID            string        `json:"unit_id"`
	Label             string        `json:"label"`
	Status            Status        `json:"status"`
	ToolVersion       string        `json:"tool_version,omitempty"`
	SessionsConverted *int          `json:"sessions_converted,omitempty"`
	TotalSessions     string        `json:"total_sessions,omitempty"`
	FaultKind         string        `json:"fault_kind,omitempty"`
	Message           string        `json:"message,omitempty"`
	Duration          time.Duration `json:"duration"`
	RecordedAt        time.Time     `json:"recorded_at"`
}

// BeginRun records the start of a pass.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	var sessionLimit any
	if run.SessionLimit != nil {
		sessionLimit = *run.SessionLimit
	}
	_, err := s.exec(ctx, `INSERT INTO runs
		(run_id, branch, tool_version, workers, unit_limit, session_limit, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Branch, run.ToolVersion, run.Workers, run.UnitLimit, sessionLimit, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SetToolVersion records the tool version once it is known.
func (s *Store) SetToolVersion(ctx context.Context, runID, version string) error {
	if _, err := s.exec(ctx, "UPDATE runs SET tool_version = ? WHERE run_id = ?", version, runID); err != nil {
		return fmt.Errorf("update run tool version: %w", err)
	}
	return nil
}

// RecordOutcome stores a unit's result. Safe for concurrent use.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome) error {
	var sessions any
	if o.SessionsConverted != nil {
		sessions = *o.SessionsConverted
	}
	_, err := s.exec(ctx, `INSERT OR REPLACE INTO outcomes
		(run_id, unit_id, label, status, tool_version, sessions_converted, total_sessions,
		 fault_kind, message, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.UnitID, o.Label, string(o.Status), nullableString(o.ToolVersion), sessions,
		nullableString(o.TotalSessions), nullableString(o.FaultKind), nullableString(o.Message),
		o.Duration.Milliseconds(), formatTime(o.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun records the end of a pass with its final tallies.
func (s *Store) FinishRun(ctx context.Context, runID string, counts Counts, finishedAt time.Time, runErr error) error {
	var errText any
	if runErr != nil {
		errText = runErr.Error()
	}
	_, err := s.exec(ctx, `UPDATE runs SET finished_at = ?, total = ?, completed = ?, skipped = ?,
		abstained = ?, failed = ?, error = ? WHERE run_id = ?`,
		nullableTime(finishedAt), counts.Total, counts.Completed, counts.Skipped,
		counts.Abstained, counts.Failed, errText, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Runs returns the most recent passes, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, branch, tool_version, workers, unit_limit, session_limit,
		started_at, finished_at, total, completed, skipped, abstained, failed, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest pass, or nil when none exists.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// Outcomes returns every outcome recorded by a pass, ordered by unit.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, unit_id, label, status, tool_version,
		sessions_converted, total_sessions, fault_kind, message, duration_ms, recorded_at
		FROM outcomes WHERE run_id = ? ORDER BY unit_id, label`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UnitHistory returns a unit's outcomes across passes, newest first.
func (s *Store) UnitHistory(ctx context.Context, unitID string, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, unit_id, label, status, tool_version,
		sessions_converted, total_sessions, fault_kind, message, duration_ms, recorded_at
		FROM outcomes WHERE unit_id = ? ORDER BY recorded_at DESC LIMIT ?`, unitID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unit history: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep passes and their outcomes.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.exec(ctx, `DELETE FROM runs WHERE run_id NOT IN
		(SELECT run_id FROM runs ORDER BY started_at DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run          Run
		sessionLimit sql.NullInt64
		started      string
		finished     sql.NullString
		errText      sql.NullString
	)
	if err := row.Scan(&run.RunID, &run.Branch, &run.ToolVersion, &run.Workers, &run.UnitLimit, &sessionLimit,
		&started, &finished, &run.Counts.Total, &run.Counts.Completed, &run.Counts.Skipped,
		&run.Counts.Abstained, &run.Counts.Failed, &errText); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if sessionLimit.Valid {
		n := int(sessionLimit.Int64)
		run.SessionLimit = &n
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	run.Error = errText.String
	return run, nil
}

func scanOutcome(row scanner) (Outcome, error) {
	var (
		o          Outcome
		status     string
		version    sql.NullString
		sessions   sql.NullInt64
		total      sql.NullString
		fault      sql.NullString
		message    sql.NullString
		durationMS int64
		recorded   string
	)
	if err := row.Scan(&o.RunID, &o.UnitID, &o.Label, &status, &version, &sessions, &total,
		&fault, &message, &durationMS, &recorded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("scan outcome: %w", err)
	}
	o.Status = Status(status)
	o.ToolVersion = version.String
	if sessions.Valid {
		n := int(sessions.Int64)
		o.SessionsConverted = &n
	}
	o.TotalSessions = total.String
	o.FaultKind = fault.String
	o.Message = message.String
	o.Duration = time.Duration(durationMS) * time.Millisecond
	var err error
	if o.RecordedAt, err = parseTime(recorded); err != nil {
		return Outcome{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	return o, nil
}
