package runtime

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Access is exclusive access to a Runtime's engine instance.
//
// There is one Access per Runtime. It is held while the Run loop executes a
// Task, and during Runtime.Exclusive. Every method panics with an
// InvariantError if called while access is not held.
//
// Extensions may capture the Access they were installed with: host functions
// called from script always run under held access.
type Access struct {
	rt   *Runtime
	held atomic.Bool
}

func (a *Access) acquire() {
	if !a.held.CompareAndSwap(false, true) {
		panic(invariant("engine instance accessed concurrently"))
	}
}

func (a *Access) release() {
	a.held.Store(false)
}

func (a *Access) check() {
	if !a.held.Load() {
		panic(invariant("engine access used outside an exclusive section"))
	}
}

// Eval compiles and runs script in the global context.
//
// Returns a persistent handle to the completion value, or nil and an
// *EvalError if the script failed to compile or threw. The engine job queue
// is flushed either way.
func (a *Access) Eval(script string) (*Handle, error) {
	return a.EvalScript("", script)
}

// EvalScript is Eval with a script name used in stack traces.
func (a *Access) EvalScript(name, script string) (*Handle, error) {
	a.check()

	var h *Handle
	err := a.Scope(func(s *Scope) error {
		prg, err := goja.Compile(name, script, a.rt.strict)
		if err != nil {
			return newEvalError(a.rt.vm, PhaseCompile, err)
		}

		v, err := a.rt.vm.RunProgram(prg)
		if err != nil {
			return newEvalError(a.rt.vm, PhaseRun, err)
		}

		h = s.Persist(v)
		return nil
	})

	a.pump()

	if err != nil {
		return nil, err
	}
	return h, nil
}

// Scope opens a scope over the engine instance and the global context for
// the duration of fn. The scope is released on every exit path of fn,
// including panics.
func (a *Access) Scope(fn func(s *Scope) error) error {
	a.check()

	s := &Scope{access: a, global: a.rt.global, open: true}
	defer s.release()

	return fn(s)
}

// String returns the string form of a handle's value. See Scope.String.
func (a *Access) String(h *Handle) (string, error) {
	var out string
	err := a.Scope(func(s *Scope) (err error) {
		out, err = s.String(h)
		return err
	})
	return out, err
}

// Queue returns the event loop's submission side.
func (a *Access) Queue() *Queue {
	a.check()
	return a.rt.queue
}

// Spawn schedules work on its own goroutine. See Runtime.Spawn.
func (a *Access) Spawn(fn SpawnFunc) *JoinHandle {
	a.check()
	return a.rt.Spawn(fn)
}

// Context returns the Runtime context. It is cancelled when the Runtime
// closes.
func (a *Access) Context() context.Context {
	a.check()
	return a.rt.ctx
}

// Logger returns the Runtime logger.
func (a *Access) Logger() *slog.Logger {
	a.check()
	return a.rt.logger
}

// RegisterModule registers a native module that scripts (and Scope.Require)
// can load with require(name).
func (a *Access) RegisterModule(name string, loader require.ModuleLoader) {
	a.check()
	a.rt.registry.RegisterNativeModule(name, loader)
}

// pump drains the engine job queue.
func (a *Access) pump() {
	if _, err := a.rt.vm.RunProgram(a.rt.flush); err != nil {
		a.rt.logger.Warn("job queue flush failed", "runtime_id", a.rt.id, "error", err)
	}
}

// Scope is a short-lived view of the engine instance and global context.
// It must not be stored; it is invalid once the function it was passed to
// returns.
type Scope struct {
	access *Access
	global *goja.Object
	open   bool
}

func (s *Scope) release() {
	s.open = false
}

func (s *Scope) check() {
	if !s.open {
		panic(invariant("scope used after release"))
	}
	s.access.check()
}

// VM returns the engine instance. The value must not escape the scope.
func (s *Scope) VM() *goja.Runtime {
	s.check()
	return s.access.rt.vm
}

// Global returns the global object of the execution context.
func (s *Scope) Global() *goja.Object {
	s.check()
	return s.global
}

// Get reads a global binding.
func (s *Scope) Get(name string) goja.Value {
	s.check()
	return s.global.Get(name)
}

// Set writes a global binding. Go values are converted with ToValue.
func (s *Scope) Set(name string, v any) error {
	s.check()
	return s.global.Set(name, v)
}

// ToValue converts a Go value to an engine value.
func (s *Scope) ToValue(v any) goja.Value {
	s.check()
	return s.access.rt.vm.ToValue(v)
}

// Require loads a module through the require registry.
func (s *Scope) Require(name string) goja.Value {
	s.check()
	return require.Require(s.access.rt.vm, name)
}

// Persist wraps v in a handle that outlives this scope.
func (s *Scope) Persist(v goja.Value) *Handle {
	s.check()
	return &Handle{owner: s.access.rt, value: v}
}

// Value dereferences a handle.
func (s *Scope) Value(h *Handle) goja.Value {
	s.check()
	if h.owner != s.access.rt {
		panic(invariant("handle used with a foreign runtime"))
	}
	return h.value
}

// String returns the string form of a handle's value, as String(v) would
// in script. A conversion that throws is returned as an *EvalError with
// PhaseConvert.
func (s *Scope) String(h *Handle) (string, error) {
	v := s.Value(h)
	if v == nil {
		return "undefined", nil
	}

	vm := s.access.rt.vm
	str, ex := toString(vm, v)
	if ex != nil {
		return "", newEvalError(vm, PhaseConvert, ex)
	}
	return str, nil
}

// Call invokes the function held by h with an undefined receiver.
// A thrown exception is returned as an *EvalError with PhaseCall.
func (s *Scope) Call(h *Handle, args ...goja.Value) (goja.Value, error) {
	fn, ok := goja.AssertFunction(s.Value(h))
	if !ok {
		return nil, &EvalError{Phase: PhaseCall, Message: "value is not a function"}
	}

	ret, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, newEvalError(s.access.rt.vm, PhaseCall, err)
	}
	return ret, nil
}

// Handle is a persistent reference to an engine value. It may be carried
// across Tasks but is only dereferenced through an open Scope of the Runtime
// that created it.
type Handle struct {
	owner *Runtime
	value goja.Value
}
