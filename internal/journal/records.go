package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/alan/internal/runtime"
)

// Run outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("journal: run not found")

// Run is one Runtime.Run invocation.
type Run struct {
	ID        string
	Script    string
	StartedAt time.Time
	EndedAt   time.Time // zero while the run is in progress
	Outcome   string    // empty while the run is in progress
}

// TaskRecord is one dispatched Task.
type TaskRecord struct {
	RunID     string
	Seq       int64
	Kind      string
	Stop      bool
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// RecordFromEvent converts a runtime TaskEvent.
func RecordFromEvent(ev runtime.TaskEvent) TaskRecord {
	rec := TaskRecord{
		RunID:     ev.RuntimeID,
		Seq:       ev.Seq,
		Kind:      ev.Kind,
		Stop:      ev.Stop,
		StartedAt: ev.Started,
		Duration:  ev.Duration,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}

// OutcomeOf classifies the error returned by Runtime.Run.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// BeginRun records the start of a run. Beginning the same run twice is a
// no-op.
func (j *Journal) BeginRun(ctx context.Context, id, script string, started time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, script, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, script, started.UnixMicro())
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// EndRun records the end of a run.
func (j *Journal) EndRun(ctx context.Context, id string, ended time.Time, outcome string) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE runs SET ended_at = ?, outcome = ? WHERE id = ?
	`, ended.UnixMicro(), outcome, id)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("end run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// WriteTask inserts a task record. Duplicate (run, seq) pairs are ignored.
// The run must have been begun (foreign key constraint).
func (j *Journal) WriteTask(ctx context.Context, rec TaskRecord) error {
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO tasks (run_id, seq, kind, stop, error, started_at, duration_us)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		rec.Kind,
		rec.Stop,
		errText,
		rec.StartedAt.UnixMicro(),
		rec.Duration.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("write task: %w", err)
	}
	return nil
}

// ReadTasks returns a run's tasks in dispatch order.
// Returns an empty slice (not nil) if the run has no tasks.
func (j *Journal) ReadTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, stop, error, started_at, duration_us
		FROM tasks
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	records := []TaskRecord{}
	for rows.Next() {
		var (
			rec      TaskRecord
			errText  sql.NullString
			started  int64
			duration int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Kind, &rec.Stop, &errText, &started, &duration); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		rec.Error = errText.String
		rec.StartedAt = time.UnixMicro(started).UTC()
		rec.Duration = time.Duration(duration) * time.Microsecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return records, nil
}

// GetRun returns one run.
func (j *Journal) GetRun(ctx context.Context, id string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, script, started_at, ended_at, outcome
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, script, started_at, ended_at, outcome
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		started int64
		ended   sql.NullInt64
		outcome sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Script, &started, &ended, &outcome); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.StartedAt = time.UnixMicro(started).UTC()
	if ended.Valid {
		run.EndedAt = time.UnixMicro(ended.Int64).UTC()
	}
	run.Outcome = outcome.String
	return run, nil
}
