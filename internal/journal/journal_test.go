package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alan/internal/runtime"
	"github.com/roach88/alan/internal/testutil"
)

func createTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "1",
	} {
		got, err := j.pragma(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.BeginRun(context.Background(), "run-1", "a.js", time.Now()))
	require.NoError(t, j1.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	runs, err := j2.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestRuns_BeginEnd(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.BeginRun(ctx, "run-1", "script.js", started))

	run, err := j.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "script.js", run.Script)
	assert.True(t, run.StartedAt.Equal(started))
	assert.True(t, run.EndedAt.IsZero(), "run in progress")
	assert.Empty(t, run.Outcome)

	ended := started.Add(1500 * time.Millisecond)
	require.NoError(t, j.EndRun(ctx, "run-1", ended, OutcomeOK))

	run, err = j.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.EndedAt.Equal(ended))
	assert.Equal(t, OutcomeOK, run.Outcome)
}

func TestRuns_NotFound(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	_, err := j.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = j.EndRun(ctx, "missing", time.Now(), OutcomeOK)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("run-%d", i)
		require.NoError(t, j.BeginRun(ctx, id, "s.js", base.Add(time.Duration(i)*time.Minute)))
	}

	runs, err := j.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-0", runs[2].ID)

	runs, err = j.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListRuns_Empty(t *testing.T) {
	j := createTestJournal(t)

	runs, err := j.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestTasks_WriteRead(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.BeginRun(ctx, "run-1", "s.js", started))

	records := []TaskRecord{
		{RunID: "run-1", Seq: 2, Kind: "timers.fire", StartedAt: started.Add(time.Millisecond), Duration: 40 * time.Microsecond},
		{RunID: "run-1", Seq: 1, Kind: "timers.schedule", StartedAt: started, Duration: 10 * time.Microsecond},
		{RunID: "run-1", Seq: 3, Kind: "fail", Error: "broken pipe", StartedAt: started.Add(2 * time.Millisecond)},
	}
	for _, rec := range records {
		require.NoError(t, j.WriteTask(ctx, rec))
	}
	require.NoError(t, j.WriteTask(ctx, records[0]), "duplicate writes are ignored")

	got, err := j.ReadTasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].Seq, got[1].Seq, got[2].Seq})
	assert.Equal(t, "timers.schedule", got[0].Kind)
	assert.Equal(t, 40*time.Microsecond, got[1].Duration)
	assert.Equal(t, "broken pipe", got[2].Error)
	assert.Empty(t, got[0].Error)
	assert.True(t, got[1].StartedAt.Equal(started.Add(time.Millisecond)))
}

func TestTasks_RequireRun(t *testing.T) {
	j := createTestJournal(t)

	err := j.WriteTask(context.Background(), TaskRecord{RunID: "nope", Seq: 1, Kind: "func", StartedAt: time.Now()})
	assert.Error(t, err, "foreign key constraint")
}

func TestTasks_ReadEmpty(t *testing.T) {
	j := createTestJournal(t)

	got, err := j.ReadTasks(context.Background(), "run-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeOK, OutcomeOf(nil))
	assert.Equal(t, OutcomeCancelled, OutcomeOf(context.Canceled))
	assert.Equal(t, OutcomeCancelled, OutcomeOf(fmt.Errorf("run: %w", context.DeadlineExceeded)))
	assert.Equal(t, OutcomeFailed, OutcomeOf(errors.New("write failed")))
}

func TestRecorder_RecordsRuntimeTasks(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	rt, err := runtime.New(
		runtime.WithLogger(testutil.DiscardLogger()),
		runtime.WithIDGenerator(runtime.NewFixedGenerator("run-1")),
		runtime.WithObserver(NewRecorder(j, testutil.DiscardLogger())),
	)
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, j.BeginRun(ctx, rt.ID(), "inline", time.Now()))

	rt.Queue().Send(runtime.TaskFunc(func(*runtime.Access) error { return nil }))
	rt.Queue().Send(runtime.StopTask())
	runErr := rt.Run(ctx)
	require.NoError(t, runErr)
	require.NoError(t, j.EndRun(ctx, rt.ID(), time.Now(), OutcomeOf(runErr)))

	tasks, err := j.ReadTasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "func", tasks[0].Kind)
	assert.Equal(t, "stop", tasks[1].Kind)
	assert.True(t, tasks[1].Stop)

	run, err := j.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, run.Outcome)
}

func TestRecorder_WriteFailureIsAbsorbed(t *testing.T) {
	j := createTestJournal(t)
	rec := NewRecorder(j, testutil.DiscardLogger())

	assert.NotPanics(t, func() {
		rec.TaskExecuted(runtime.TaskEvent{RuntimeID: "never-begun", Seq: 1, Kind: "func", Started: time.Now()})
	})
}
