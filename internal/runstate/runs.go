package runstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run or stage run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Run is one ridereel invocation covering a range of stages.
type Run struct {
	ID         string
	From       string
	To         string
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration is the wall time of a finished run, zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageRun is one stage execution inside a run.
type StageRun struct {
	ID         int64
	RunID      string
	Stage      string
	Status     Status
	Items      int
	Skipped    int
	Detail     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration is the wall time of a finished stage, zero while running.
func (s StageRun) Duration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Outcome is what a stage reports when it finishes.
type Outcome struct {
	Items   int
	Skipped int
	Detail  string
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(raw string) (time.Time, error) {
	return time.Parse(timeLayout, raw)
}

func parseOptionalTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

// BeginRun records a new run with a fresh id.
func (s *Store) BeginRun(ctx context.Context, from, to string) (Run, error) {
	run := Run{ID: uuid.NewString(), From: from, To: to, Status: StatusRunning, StartedAt: s.now()}
	_, err := s.exec(ctx,
		"INSERT INTO runs (id, from_stage, to_stage, status, started_at) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.From, run.To, string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun closes a run as completed, or failed when runErr is non-nil.
func (s *Store) FinishRun(ctx context.Context, id string, runErr error) error {
	status := StatusCompleted
	if runErr != nil {
		status = StatusFailed
	}
	_, err := s.exec(ctx,
		"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		string(status), errorText(runErr), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// BeginStage records a stage starting inside run.
func (s *Store) BeginStage(ctx context.Context, runID, stage string) (int64, error) {
	res, err := s.exec(ctx,
		"INSERT INTO stage_runs (run_id, stage, status, started_at) VALUES (?, ?, ?, ?)",
		runID, stage, string(StatusRunning), formatTime(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert stage run: %w", err)
	}
	return res.LastInsertId()
}

// FinishStage closes a stage run with its outcome.
func (s *Store) FinishStage(ctx context.Context, id int64, outcome Outcome, stageErr error) error {
	status := StatusCompleted
	if stageErr != nil {
		status = StatusFailed
	}
	_, err := s.exec(ctx,
		"UPDATE stage_runs SET status = ?, items = ?, skipped = ?, detail = ?, error = ?, finished_at = ? WHERE id = ?",
		string(status), outcome.Items, outcome.Skipped, outcome.Detail, errorText(stageErr), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish stage run: %w", err)
	}
	return nil
}

// MarkInterrupted closes every run and stage still marked running, as left
// behind by a killed process. It returns how many runs were closed.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(s.now())
	if _, err := s.exec(ctx,
		"UPDATE stage_runs SET status = ?, finished_at = ? WHERE status = ?",
		string(StatusInterrupted), now, string(StatusRunning),
	); err != nil {
		return 0, fmt.Errorf("interrupt stage runs: %w", err)
	}
	res, err := s.exec(ctx,
		"UPDATE runs SET status = ?, finished_at = ? WHERE status = ?",
		string(StatusInterrupted), now, string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("interrupt runs: %w", err)
	}
	return res.RowsAffected()
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, from_stage, to_stage, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run      Run
			status   string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.From, &run.To, &status, &run.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = Status(status)
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse run start: %w", err)
		}
		if run.FinishedAt, err = parseOptionalTime(finished); err != nil {
			return nil, fmt.Errorf("parse run finish: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Stages returns the stage runs of one run in execution order.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageRun, error) {
	return s.queryStages(ctx,
		"SELECT id, run_id, stage, status, items, skipped, detail, error, started_at, finished_at FROM stage_runs WHERE run_id = ? ORDER BY id",
		runID,
	)
}

// LatestStage returns the most recent run of stage. ok is false when the
// stage never ran.
func (s *Store) LatestStage(ctx context.Context, stage string) (StageRun, bool, error) {
	out, err := s.queryStages(ctx,
		"SELECT id, run_id, stage, status, items, skipped, detail, error, started_at, finished_at FROM stage_runs WHERE stage = ? ORDER BY id DESC LIMIT 1",
		stage,
	)
	if err != nil || len(out) == 0 {
		return StageRun{}, false, err
	}
	return out[0], true, nil
}

func (s *Store) queryStages(ctx context.Context, query string, args ...any) ([]StageRun, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()

	var out []StageRun
	for rows.Next() {
		var (
			sr       StageRun
			status   string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.Stage, &status, &sr.Items, &sr.Skipped, &sr.Detail, &sr.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		sr.Status = Status(status)
		if sr.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse stage start: %w", err)
		}
		if sr.FinishedAt, err = parseOptionalTime(finished); err != nil {
			return nil, fmt.Errorf("parse stage finish: %w", err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
