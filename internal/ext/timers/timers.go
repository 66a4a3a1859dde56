// Package timers installs setTimeout, setInterval, clearTimeout and
// clearInterval into a Runtime.
//
// A timer is a record in the Runtime's Storage plus a wait loop running as
// spawned work. The wait loop never touches the engine: on expiry it sends a
// fire Task, and the fire Task re-checks that the timer is still live before
// calling back into script. Cancelling a timer cancels its context, which
// ends the wait loop at its next select.
package timers

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"

	"github.com/roach88/alan/internal/runtime"
)

// ModuleName is the require() name of the timers module.
const ModuleName = "timers"

// maxDelayMillis caps a delay at roughly 24.8 days.
const maxDelayMillis = math.MaxInt32

// minInterval keeps a zero-delay interval from spinning the loop.
const minInterval = time.Millisecond

var globals = []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"}

// Option configures the extension.
type Option func(*Extension)

// WithObserver sets the timer observer.
func WithObserver(o Observer) Option {
	return func(e *Extension) {
		e.observer = o
	}
}

// Extension is the timers runtime.Extension.
type Extension struct {
	observer Observer
}

// New creates the timers extension.
func New(opts ...Option) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements runtime.Extension.
func (e *Extension) Name() string {
	return ModuleName
}

// Install creates the Runtime's timer Storage, registers the timers module
// and binds its functions as globals.
func (e *Extension) Install(a *runtime.Access) error {
	runtime.SetSlot(a, NewStorage(e.observer))

	a.RegisterModule(ModuleName, func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		_ = exports.Set("setTimeout", schedule(a, vm, "setTimeout", false))
		_ = exports.Set("setInterval", schedule(a, vm, "setInterval", true))
		_ = exports.Set("clearTimeout", clearTimer(a))
		_ = exports.Set("clearInterval", clearTimer(a))
	})

	return a.Scope(func(s *runtime.Scope) error {
		mod := s.Require(ModuleName).ToObject(s.VM())
		for _, name := range globals {
			if err := s.Set(name, mod.Get(name)); err != nil {
				return fmt.Errorf("bind %s: %w", name, err)
			}
		}
		return nil
	})
}

func schedule(a *runtime.Access, vm *goja.Runtime, name string, repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		callback := call.Argument(0)
		if _, ok := goja.AssertFunction(callback); !ok {
			panic(vm.NewTypeError("%s: callback must be a function", name))
		}
		delay := toDelay(call.Argument(1), repeat)

		var id int64
		_ = a.Scope(func(s *runtime.Scope) error {
			storage := runtime.MustSlot[*Storage](a)

			var ctx context.Context
			id, ctx = storage.Register(a.Context(), repeat)
			a.Queue().Send(&scheduleTask{
				id:       id,
				ctx:      ctx,
				queue:    a.Queue(),
				callback: s.Persist(callback),
				delay:    delay,
				repeat:   repeat,
			})
			return nil
		})

		return vm.ToValue(id)
	}
}

func clearTimer(a *runtime.Access) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			return goja.Undefined()
		}
		runtime.MustSlot[*Storage](a).Cancel(arg.ToInteger())
		return goja.Undefined()
	}
}

// toDelay converts a script delay in milliseconds. Missing, NaN and negative
// delays become zero; huge ones are capped.
func toDelay(v goja.Value, repeat bool) time.Duration {
	ms := v.ToFloat()
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	if ms > maxDelayMillis {
		ms = maxDelayMillis
	}

	d := time.Duration(ms * float64(time.Millisecond))
	if repeat && d < minInterval {
		d = minInterval
	}
	return d
}

// scheduleTask starts a timer's wait loop.
type scheduleTask struct {
	id       int64
	ctx      context.Context
	queue    *runtime.Queue
	callback *runtime.Handle
	delay    time.Duration
	repeat   bool
}

func (t *scheduleTask) Execute(a *runtime.Access) error {
	a.Spawn(t.wait)
	return nil
}

func (*scheduleTask) Stop() bool   { return false }
func (*scheduleTask) Kind() string { return "timers.schedule" }

// wait sleeps until the timer expires or is cancelled. Intervals re-arm for
// the full delay after each expiry.
func (t *scheduleTask) wait(context.Context) error {
	timer := time.NewTimer(t.delay)
	defer timer.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return nil
		case <-timer.C:
		}

		if t.ctx.Err() != nil {
			return nil
		}
		if !t.queue.Send(&fireTask{id: t.id, callback: t.callback, repeat: t.repeat}) {
			return nil
		}
		if !t.repeat {
			return nil
		}
		timer.Reset(t.delay)
	}
}

// fireTask calls a timer's callback if the timer is still live.
type fireTask struct {
	id       int64
	callback *runtime.Handle
	repeat   bool
}

func (t *fireTask) Execute(a *runtime.Access) error {
	storage := runtime.MustSlot[*Storage](a)
	if !storage.Has(t.id) {
		return nil
	}
	if !t.repeat {
		storage.expire(t.id)
	}

	err := a.Scope(func(s *runtime.Scope) error {
		_, err := s.Call(t.callback)
		return err
	})
	if err != nil {
		a.Logger().Warn("timer callback threw", "timer_id", t.id, "error", err)
	}

	storage.fired(t.id, t.repeat)
	return nil
}

func (*fireTask) Stop() bool   { return false }
func (*fireTask) Kind() string { return "timers.fire" }
