package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alan/internal/journal"
)

// journaledRun runs a small script with --journal and returns the database
// path and the recorded run id.
func journaledRun(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	script := writeFile(t, dir, "tick.js", `setTimeout(function () {}, 1);`)

	_, _, err := execute(t, "", "run", script, "--journal", db)
	require.NoError(t, err)

	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return db, runs[0].ID
}

func TestJournal_ListRuns(t *testing.T) {
	db, id := journaledRun(t)

	stdout, _, err := execute(t, "", "journal", db)
	require.NoError(t, err)

	assert.Contains(t, stdout, "OUTCOME")
	assert.Contains(t, stdout, id)
	assert.Contains(t, stdout, "tick.js")
	assert.Contains(t, stdout, journal.OutcomeOK)
}

func TestJournal_ListRunsJSON(t *testing.T) {
	db, id := journaledRun(t)

	stdout, _, err := execute(t, "", "journal", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   []RunView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, id, resp.Data[0].ID)
	assert.Equal(t, journal.OutcomeOK, resp.Data[0].Outcome)
	assert.NotEmpty(t, resp.Data[0].Duration)
}

func TestJournal_ShowRun(t *testing.T) {
	db, id := journaledRun(t)

	stdout, _, err := execute(t, "", "journal", db, "--run", id)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Run "+id)
	assert.Contains(t, stdout, "timers.schedule")
	assert.Contains(t, stdout, "timers.fire")
}

func TestJournal_ShowRunJSON(t *testing.T) {
	db, id := journaledRun(t)

	stdout, _, err := execute(t, "", "journal", db, "--run", id, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Run   RunView    `json:"run"`
			Tasks []TaskView `json:"tasks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, id, resp.Data.Run.ID)
	require.Len(t, resp.Data.Tasks, 2)
	assert.Equal(t, "timers.schedule", resp.Data.Tasks[0].Kind)
	assert.Equal(t, "timers.fire", resp.Data.Tasks[1].Kind)
	assert.Less(t, resp.Data.Tasks[0].Seq, resp.Data.Tasks[1].Seq)
}

func TestJournal_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	j, err := journal.Open(db)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	stdout, _, err := execute(t, "", "journal", db)
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", stdout)
}

func TestJournal_UnknownRun(t *testing.T) {
	db, _ := journaledRun(t)

	_, _, err := execute(t, "", "journal", db, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), "run not found")
}

func TestJournal_MissingDatabase(t *testing.T) {
	_, _, err := execute(t, "", "journal", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), "journal not found")
}
