// Package host assembles the baseline Runtime: the engine host plus the
// console and timers extensions.
package host

import (
	"io"
	"os"

	"github.com/roach88/alan/internal/ext/console"
	"github.com/roach88/alan/internal/ext/timers"
	"github.com/roach88/alan/internal/runtime"
)

// Config configures a baseline Runtime.
type Config struct {
	// Stdout receives console.log, info and debug. Default: os.Stdout.
	Stdout io.Writer

	// Stderr receives console.warn and error. Default: os.Stderr.
	Stderr io.Writer

	// TimerObserver, if set, is notified of timer lifecycle events.
	TimerObserver timers.Observer

	// Options are passed to runtime.New after the baseline extensions, so
	// extensions given here install after console and timers.
	Options []runtime.Option
}

// New creates a Runtime with console and timers installed.
func New(cfg Config) (*runtime.Runtime, error) {
	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	var timerOpts []timers.Option
	if cfg.TimerObserver != nil {
		timerOpts = append(timerOpts, timers.WithObserver(cfg.TimerObserver))
	}

	opts := []runtime.Option{
		runtime.WithExtensions(
			console.New(stdout, stderr),
			timers.New(timerOpts...),
		),
	}
	opts = append(opts, cfg.Options...)

	return runtime.New(opts...)
}
