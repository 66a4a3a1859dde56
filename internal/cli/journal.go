package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/alan/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Run   string
	Limit int
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal <db>",
		Short: "Show recorded runs",
		Long: `Show runs recorded with "alan run --journal", newest first, or the
tasks of one run with --run.

Examples:
  alan journal runs.db
  alan journal runs.db --limit 5
  alan journal runs.db --run 0190f0c2-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showJournal(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "show the tasks of this run")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")

	return cmd
}

// RunView is a journal run in command output.
type RunView struct {
	ID        string `json:"id"`
	Script    string `json:"script"`
	StartedAt string `json:"started_at"`
	Duration  string `json:"duration,omitempty"`
	Outcome   string `json:"outcome"`
}

// TaskView is a journal task in command output.
type TaskView struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	Stop     bool   `json:"stop,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

func showJournal(cmd *cobra.Command, opts *JournalOptions, path string) error {
	// Open would create a missing database
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Run != "" {
		return showRun(ctx, cmd, opts, j)
	}
	return listRuns(ctx, cmd, opts, j)
}

func listRuns(ctx context.Context, cmd *cobra.Command, opts *JournalOptions, j *journal.Journal) error {
	runs, err := j.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}

	views := make([]RunView, len(runs))
	for i, run := range runs {
		views[i] = runView(run)
	}

	out := opts.formatter(cmd.OutOrStdout())
	if out.JSON() {
		return out.Result(views, "", "")
	}

	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCRIPT\tSTARTED\tDURATION\tOUTCOME")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Script, v.StartedAt, v.Duration, v.Outcome)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, cmd *cobra.Command, opts *JournalOptions, j *journal.Journal) error {
	run, err := j.GetRun(ctx, opts.Run)
	if errors.Is(err, journal.ErrRunNotFound) {
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read run", err)
	}

	tasks, err := j.ReadTasks(ctx, opts.Run)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read tasks", err)
	}

	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = TaskView{
			Seq:      t.Seq,
			Kind:     t.Kind,
			Stop:     t.Stop,
			Error:    t.Error,
			Duration: t.Duration.String(),
		}
	}

	out := opts.formatter(cmd.OutOrStdout())
	if out.JSON() {
		return out.Result(map[string]any{"run": runView(run), "tasks": views}, "", "")
	}

	w := cmd.OutOrStdout()
	v := runView(run)
	fmt.Fprintf(w, "Run %s (%s): %s\n", v.ID, v.Script, v.Outcome)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tKIND\tDURATION\tNOTE")
	for _, t := range views {
		note := t.Error
		if t.Stop {
			note = "stop"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.Seq, t.Kind, t.Duration, note)
	}
	return tw.Flush()
}

func runView(run journal.Run) RunView {
	v := RunView{
		ID:        run.ID,
		Script:    run.Script,
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Outcome:   run.Outcome,
	}
	if v.Outcome == "" {
		v.Outcome = "running"
	}
	if !run.EndedAt.IsZero() {
		v.Duration = run.EndedAt.Sub(run.StartedAt).String()
	}
	return v
}
