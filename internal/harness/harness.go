package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/alan/internal/host"
	"github.com/roach88/alan/internal/runtime"
	"github.com/roach88/alan/internal/testutil"
)

// DefaultTimeout bounds a run when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Options configures a harness run.
type Options struct {
	Timeout time.Duration
	Strict  bool
	Logger  *slog.Logger // default: discard
}

// Result is the outcome of running one script.
type Result struct {
	Name string

	// Output and Errors are what the script wrote to stdout and stderr.
	Output string
	Errors string

	// Tasks lists the kind of every dispatched Task, in order.
	Tasks []string

	// EvalErr is set when evaluating the script threw. The loop is not run.
	EvalErr *runtime.EvalError

	// RunErr is the error returned by Runtime.Run.
	RunErr error
}

// Transcript renders the result in the expectation file format.
func (r *Result) Transcript() string {
	var b strings.Builder
	b.WriteString(r.Output)
	if r.Errors != "" {
		b.WriteString("[stderr]\n")
		b.WriteString(r.Errors)
	}
	if r.EvalErr != nil {
		fmt.Fprintf(&b, "Uncaught %s\n", r.EvalErr.Message)
	}
	if r.RunErr != nil {
		fmt.Fprintf(&b, "error: %v\n", r.RunErr)
	}
	return b.String()
}

// Run evaluates src on a fresh baseline Runtime and runs the event loop
// until it is idle. A script still running after opts.Timeout is
// interrupted and reported as a RunErr wrapping context.DeadlineExceeded.
//
// Script failures are reported in the Result. The returned error is reserved
// for host failures: the Runtime could not be created.
func Run(ctx context.Context, name, src string, opts Options) (*Result, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = testutil.DiscardLogger()
	}

	var stdout, stderr testutil.SyncBuffer
	obs := &testutil.RecordingObserver{}

	rt, err := host.New(host.Config{
		Stdout: &stdout,
		Stderr: &stderr,
		Options: []runtime.Option{
			runtime.WithLogger(opts.Logger),
			runtime.WithIDGenerator(runtime.NewFixedGenerator("harness-" + name)),
			runtime.WithObserver(obs),
			runtime.WithExitOnIdle(true),
			runtime.WithStrict(opts.Strict),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime for %s: %w", name, err)
	}
	defer rt.Close()

	res := &Result{Name: name}

	// The timeout covers evaluation and the loop. Run only observes ctx
	// between tasks, so a script spinning inside one is interrupted.
	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	stopInterrupt := context.AfterFunc(runCtx, func() {
		rt.Interrupt(fmt.Sprintf("%s: %v", name, context.Cause(runCtx)))
	})
	defer stopInterrupt()

	if _, err := rt.EvalScript(name, src); err != nil {
		var evalErr *runtime.EvalError
		switch {
		case runCtx.Err() != nil:
			res.RunErr = runCtx.Err()
		case errors.As(err, &evalErr):
			res.EvalErr = evalErr
		default:
			return nil, fmt.Errorf("evaluate %s: %w", name, err)
		}
	} else {
		res.RunErr = rt.Run(runCtx)
	}

	res.Output = stdout.String()
	res.Errors = stderr.String()
	res.Tasks = obs.Kinds()
	return res, nil
}

// RunFile runs the script at path. The result is named after the file
// without its extension.
func RunFile(ctx context.Context, path string, opts Options) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	base := filepath.Base(path)
	return Run(ctx, strings.TrimSuffix(base, filepath.Ext(base)), string(src), opts)
}
