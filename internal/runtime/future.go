package runtime

import (
	"context"
	"fmt"
)

// SpawnFunc is a unit of asynchronous work. It receives the Runtime context
// (cancelled on Close) and no engine access: to touch the engine it sends a
// Task.
type SpawnFunc func(ctx context.Context) error

// JoinHandle is the eventual outcome of spawned work.
type JoinHandle struct {
	done chan struct{}
	err  error
}

func newJoinHandle() *JoinHandle {
	return &JoinHandle{done: make(chan struct{})}
}

func (h *JoinHandle) finish(err error) {
	h.err = err
	close(h.done)
}

// Done is closed when the work has finished.
func (h *JoinHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the work's error. Only meaningful after Done is closed.
func (h *JoinHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the work finishes or ctx is done.
func (h *JoinHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runSpawned runs fn, turning a panic into an error.
func runSpawned(ctx context.Context, fn SpawnFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("spawned work panicked: %v", p)
		}
	}()
	return fn(ctx)
}
