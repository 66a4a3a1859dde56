package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/alan/internal/ext/repl"
	"github.com/roach88/alan/internal/host"
	"github.com/roach88/alan/internal/runtime"
)

// flushTimeout bounds how long the REPL waits for pending output on exit.
const flushTimeout = 2 * time.Second

// NewReplCommand creates the repl command.
func NewReplCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Long: `Start an interactive session. Each line is evaluated as a script and
its result is printed. Type "exit" or send end of input to leave.

Timers keep running between lines; their output appears as they fire.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(cmd, rootOpts)
		},
	}

	return cmd
}

func runRepl(cmd *cobra.Command, opts *RootOptions) error {
	logger := opts.Logger(cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	rt, err := host.New(host.Config{
		Stdout: out,
		Stderr: cmd.ErrOrStderr(),
		Options: []runtime.Option{
			runtime.WithLogger(logger),
			runtime.WithStrict(opts.Config().Strict),
		},
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create runtime", err)
	}
	defer rt.Close()

	session := repl.New(cmd.InOrStdin(), out)
	if err := rt.Install(session); err != nil {
		return WrapExitError(ExitFailure, "failed to start session", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runErr := runLoop(ctx, rt, nil, logger)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := session.Wait(flushCtx); err != nil && runErr == nil {
		runErr = err
	}

	if runErr != nil && !cancelled(runErr) {
		return WrapExitError(ExitFailure, "session failed", runErr)
	}
	return nil
}
