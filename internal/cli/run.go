package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/alan/internal/ext/timers"
	"github.com/roach88/alan/internal/host"
	"github.com/roach88/alan/internal/journal"
	"github.com/roach88/alan/internal/metrics"
	"github.com/roach88/alan/internal/runtime"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal     string
	MetricsAddr string
	Strict      bool
	KeepAlive   bool

	// IDGenerator overrides the runtime ID generator (for testing).
	IDGenerator runtime.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Evaluate a script and run its event loop",
		Long: `Evaluate a script, then run the event loop until no timers or other
work remain (or until interrupted with --keep-alive).

If the script throws while it is evaluated, the error is printed as
"Uncaught <message>" and the loop is not started.

Exit codes:
  0 - Script finished (or was interrupted)
  1 - Script threw, or the event loop failed
  2 - Command error (script not found, journal could not be opened, etc.)

Examples:
  alan run script.js
  alan run script.js --journal runs.db
  alan run server.js --keep-alive --metrics-addr :9100`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record dispatched tasks in this SQLite database")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "evaluate the script in strict mode")
	cmd.Flags().BoolVar(&opts.KeepAlive, "keep-alive", false, "keep the event loop running when idle")

	return cmd
}

// settle applies flags over the loaded configuration.
func (o *RunOptions) settle(cmd *cobra.Command) {
	cfg := o.Config()

	if !cmd.Flags().Changed("journal") {
		o.Journal = cfg.JournalPath
	}
	if !cmd.Flags().Changed("metrics-addr") {
		o.MetricsAddr = cfg.MetricsAddr
	}
	if !cmd.Flags().Changed("strict") {
		o.Strict = cfg.Strict
	}
	if !cmd.Flags().Changed("keep-alive") {
		o.KeepAlive = !cfg.ExitOnIdle
	}
}

func runScript(cmd *cobra.Command, opts *RunOptions, path string) error {
	opts.settle(cmd)
	stderr := cmd.ErrOrStderr()
	logger := opts.Logger(stderr)

	src, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		observers runtime.MultiObserver
		timerObs  timers.Observer
		srv       *metrics.Server
	)

	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		collector := metrics.New(reg)
		observers = append(observers, collector)
		timerObs = collector
		srv = metrics.NewServer(opts.MetricsAddr, reg, logger)
	}

	var j *journal.Journal
	if opts.Journal != "" {
		j, err = journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		observers = append(observers, journal.NewRecorder(j, logger))
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(logger),
		runtime.WithExitOnIdle(!opts.KeepAlive),
		runtime.WithStrict(opts.Strict),
	}
	if len(observers) > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithObserver(observers))
	}
	if opts.IDGenerator != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithIDGenerator(opts.IDGenerator))
	}

	rt, err := host.New(host.Config{
		Stdout:        cmd.OutOrStdout(),
		Stderr:        stderr,
		TimerObserver: timerObs,
		Options:       runtimeOpts,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create runtime", err)
	}
	defer rt.Close()

	rec := runRecord{journal: j, id: rt.ID(), logger: logger}
	rec.begin(ctx, path)

	if _, err := rt.EvalScript(path, string(src)); err != nil {
		rec.end(ctx, err)

		var evalErr *runtime.EvalError
		if errors.As(err, &evalErr) {
			fmt.Fprintf(stderr, "Uncaught %s\n", evalErr.Message)
			return &ExitError{Code: ExitFailure, Message: "script threw", Err: err, Silent: true}
		}
		return WrapExitError(ExitFailure, "failed to evaluate script", err)
	}

	runErr := runLoop(ctx, rt, srv, logger)
	rec.end(ctx, runErr)

	switch {
	case runErr == nil:
		return nil
	case cancelled(runErr):
		logger.Info("run interrupted", "runtime_id", rt.ID())
		return nil
	default:
		return WrapExitError(ExitFailure, "event loop failed", runErr)
	}
}

// runRecord brackets a run in the journal, if there is one.
type runRecord struct {
	journal *journal.Journal
	id      string
	logger  *slog.Logger
}

func (r runRecord) begin(ctx context.Context, script string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.BeginRun(context.WithoutCancel(ctx), r.id, script, time.Now()); err != nil {
		r.logger.Warn("journal write failed", "runtime_id", r.id, "error", err)
	}
}

func (r runRecord) end(ctx context.Context, err error) {
	if r.journal == nil {
		return
	}
	if werr := r.journal.EndRun(context.WithoutCancel(ctx), r.id, time.Now(), journal.OutcomeOf(err)); werr != nil {
		r.logger.Warn("journal write failed", "runtime_id", r.id, "error", werr)
	}
}

