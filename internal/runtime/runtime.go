package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Extension installs host capabilities into a Runtime's execution context.
// Install runs with exclusive access, once, in the order extensions were
// given.
type Extension interface {
	Name() string
	Install(a *Access) error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithObserver sets the task observer.
func WithObserver(o Observer) Option {
	return func(r *Runtime) {
		r.observer = o
	}
}

// WithExitOnIdle makes Run return once the queue is empty and no spawned
// work is outstanding.
func WithExitOnIdle(exit bool) Option {
	return func(r *Runtime) {
		r.exitOnIdle = exit
	}
}

// WithStrict compiles every evaluated script in strict mode.
func WithStrict(strict bool) Option {
	return func(r *Runtime) {
		r.strict = strict
	}
}

// WithExtensions appends extensions to install during New.
func WithExtensions(exts ...Extension) Option {
	return func(r *Runtime) {
		r.extensions = append(r.extensions, exts...)
	}
}

// WithIDGenerator sets the Runtime ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runtime) {
		r.idGen = g
	}
}

// Runtime is the engine host: it owns the engine instance, the execution
// context and the event loop.
//
// Thread-safety model:
//   - Queue().Send, Bridge(), Spawn(), Interrupt(), Close(): safe from any goroutine
//   - Run(): one call at a time; the calling goroutine becomes the engine goroutine
//   - Eval(), Scope(), Exclusive(), Install(): only while Run is not executing a Task
//
// INVARIANTS:
//   - Exactly one engine instance per Runtime, reachable only through Access
//   - Tasks execute one at a time in submission order
//   - Every Task and Eval ends with a job queue flush
type Runtime struct {
	id       string
	vm       *goja.Runtime
	global   *goja.Object
	registry *require.Registry
	flush    *goja.Program

	queue  *Queue
	bridge *Bridge
	access *Access
	slots  *slots
	clock  *Clock // dispatch sequence

	logger     *slog.Logger
	observer   Observer
	idGen      IDGenerator
	extensions []Extension
	exitOnIdle bool
	strict     bool

	ctx     context.Context
	cancel  context.CancelFunc
	pending atomic.Int64 // outstanding spawned work
	running atomic.Bool
	closed  atomic.Bool
}

// New creates a Runtime: initializes the platform if needed, creates the
// engine instance and its execution context, and installs extensions in
// order. An error here means the host cannot start.
func New(opts ...Option) (*Runtime, error) {
	flush, err := flushProgram()
	if err != nil {
		return nil, fmt.Errorf("init platform: %w", err)
	}

	r := &Runtime{
		flush:    flush,
		registry: new(require.Registry),
		queue:    NewQueue(),
		slots:    newSlots(),
		clock:    NewClock(),
		logger:   slog.Default(),
		idGen:    UUIDv7Generator{},
	}
	r.access = &Access{rt: r}
	r.bridge = &Bridge{queue: r.queue}

	for _, opt := range opts {
		opt(r)
	}

	r.id = r.idGen.Generate()
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.vm = goja.New()
	r.global = r.vm.GlobalObject()
	r.registry.Enable(r.vm)
	r.vm.SetPromiseRejectionTracker(r.trackRejection)

	for _, ext := range r.extensions {
		if err := r.Install(ext); err != nil {
			r.Close()
			return nil, err
		}
	}

	r.logger.Debug("runtime created", "runtime_id", r.id, "extensions", len(r.extensions))
	return r, nil
}

// ID returns the Runtime ID.
func (r *Runtime) ID() string {
	return r.id
}

// Install installs an extension after construction.
func (r *Runtime) Install(ext Extension) error {
	err := r.Exclusive(func(a *Access) error {
		return ext.Install(a)
	})
	if err != nil {
		return fmt.Errorf("install extension %s: %w", ext.Name(), err)
	}

	r.logger.Debug("extension installed", "runtime_id", r.id, "extension", ext.Name())
	return nil
}

// Exclusive runs fn with exclusive engine access from outside the loop.
//
// Panics with an InvariantError if access is already held, e.g. when called
// from inside a Task. Tasks use the Access they were given instead.
func (r *Runtime) Exclusive(fn func(a *Access) error) error {
	if r.closed.Load() {
		return ErrClosed
	}

	r.access.acquire()
	defer r.access.release()

	return fn(r.access)
}

// Scope runs fn under a scope over the engine instance and global context.
func (r *Runtime) Scope(fn func(s *Scope) error) error {
	return r.Exclusive(func(a *Access) error {
		return a.Scope(fn)
	})
}

// Eval evaluates script. See Access.Eval.
func (r *Runtime) Eval(script string) (*Handle, error) {
	return r.EvalScript("", script)
}

// EvalScript evaluates a named script. See Access.EvalScript.
func (r *Runtime) EvalScript(name, script string) (*Handle, error) {
	var h *Handle
	err := r.Exclusive(func(a *Access) error {
		var err error
		h, err = a.EvalScript(name, script)
		return err
	})
	return h, err
}

// String returns the string form of a handle's value. It fails with
// ErrClosed after Close, and with an *EvalError if the conversion throws.
func (r *Runtime) String(h *Handle) (string, error) {
	var out string
	err := r.Exclusive(func(a *Access) (err error) {
		out, err = a.String(h)
		return err
	})
	return out, err
}

// Queue returns the event loop's submission side.
func (r *Runtime) Queue() *Queue {
	return r.queue
}

// Bridge returns the Runtime's bridge for scheduling closures with engine
// access.
func (r *Runtime) Bridge() *Bridge {
	return r.bridge
}

// Spawn runs fn on its own goroutine and returns a handle to its outcome.
//
// fn gets the Runtime context and nothing else: it never touches the engine
// directly. A panic in fn becomes the handle's error.
func (r *Runtime) Spawn(fn SpawnFunc) *JoinHandle {
	h := newJoinHandle()
	r.pending.Add(1)

	go func() {
		err := runSpawned(r.ctx, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("spawned work failed", "runtime_id", r.id, "error", err)
		}
		h.finish(err)

		r.pending.Add(-1)
		r.queue.notify()
	}()

	return h
}

// Pending returns the number of spawned units of work still running.
func (r *Runtime) Pending() int {
	return int(r.pending.Load())
}

// Interrupt aborts the script currently running on the engine. The aborted
// Eval or Call fails with an *EvalError. Safe from any goroutine.
func (r *Runtime) Interrupt(reason any) {
	r.vm.Interrupt(reason)
}

// Run is the event loop. It blocks until one of:
//   - a Task's Stop() returns true (returns nil)
//   - the queue is closed and drained (returns nil)
//   - the Runtime is closed; queued Tasks are dropped (returns nil)
//   - WithExitOnIdle is set and there is no queued or spawned work (returns nil)
//   - ctx is cancelled (returns ctx.Err())
//   - a Task fails (returns its error)
//
// Run must be the only driver of engine mutation while it is active.
func (r *Runtime) Run(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.logger.Info("runtime starting", "runtime_id", r.id)

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("runtime stopping: context cancelled", "runtime_id", r.id)
			return err
		}

		task, ok := r.queue.TryDequeue()
		if ok {
			if r.closed.Load() {
				r.logger.Info("runtime stopping: closed", "runtime_id", r.id)
				return nil
			}
			stop, err := r.dispatch(task)
			if err != nil {
				r.logger.Error("task failed, stopping runtime",
					"runtime_id", r.id,
					"kind", TaskKind(task),
					"error", err,
				)
				return err
			}
			if stop {
				reason := "runtime stopping: stop requested"
				if r.closed.Load() {
					reason = "runtime stopping: closed"
				}
				r.logger.Info(reason, "runtime_id", r.id, "kind", TaskKind(task))
				return nil
			}
			continue
		}

		// pending is read before the queue: spawned work sends its last Task
		// before it stops counting as pending.
		if r.exitOnIdle && r.pending.Load() == 0 && r.queue.Len() == 0 {
			r.logger.Info("runtime stopping: idle", "runtime_id", r.id)
			return nil
		}

		select {
		case <-ctx.Done():
			r.logger.Info("runtime stopping: context cancelled", "runtime_id", r.id)
			return ctx.Err()

		case <-r.queue.Wait():
			if r.queue.Closed() && r.queue.Len() == 0 {
				r.logger.Info("runtime stopping: queue closed", "runtime_id", r.id)
				return nil
			}
		}
	}
}

// dispatch executes one Task with exclusive access and flushes the job queue.
func (r *Runtime) dispatch(task Task) (bool, error) {
	seq := r.clock.Next()
	kind := TaskKind(task)
	started := time.Now()

	ran := false
	err := r.Exclusive(func(a *Access) error {
		ran = true
		if err := task.Execute(a); err != nil {
			return err
		}
		a.pump()
		return nil
	})
	if !ran {
		// closed after the task was dequeued; it never executed
		return true, nil
	}
	stop := task.Stop()
	elapsed := time.Since(started)

	r.logger.Debug("task executed",
		"runtime_id", r.id,
		"seq", seq,
		"kind", kind,
		"stop", stop,
		"duration", elapsed,
	)

	if r.observer != nil {
		r.observer.TaskExecuted(TaskEvent{
			RuntimeID: r.id,
			Seq:       seq,
			Kind:      kind,
			Stop:      stop,
			Err:       err,
			Started:   started,
			Duration:  elapsed,
		})
	}

	return stop, err
}

// trackRejection logs promises rejected while no handler is attached.
func (r *Runtime) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	if op != goja.PromiseRejectionReject {
		return
	}
	reason := "undefined"
	if v := p.Result(); v != nil {
		reason = unprintable
		if str, ex := toString(r.vm, v); ex == nil {
			reason = str
		}
	}
	r.logger.Warn("unhandled promise rejection", "runtime_id", r.id, "reason", reason)
}

// Close tears the Runtime down: cancels its context (and with it all spawned
// work), closes instance slots in reverse install order - timer storage
// cancels every outstanding timer - and closes the queue. Idempotent.
//
// Call Close after Run has returned, or from another goroutine to stop a
// running loop.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.cancel()
	err := r.slots.close()
	r.queue.Close()

	r.logger.Debug("runtime closed", "runtime_id", r.id)
	return err
}
