package testutil

import (
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/alan/internal/runtime"
)

// RecordingObserver records every TaskEvent it is given.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RecordingObserver struct {
	mu     sync.Mutex
	events []runtime.TaskEvent
}

// TaskExecuted implements runtime.Observer.
func (o *RecordingObserver) TaskExecuted(ev runtime.TaskEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

// Events returns a copy of the recorded events.
func (o *RecordingObserver) Events() []runtime.TaskEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]runtime.TaskEvent(nil), o.events...)
}

// Kinds returns the kind of every recorded event, in dispatch order.
func (o *RecordingObserver) Kinds() []string {
	events := o.Events()
	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
