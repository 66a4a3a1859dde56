package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	testrequire "github.com/stretchr/testify/require"
)

func TestAccess_PanicsOutsideExclusive(t *testing.T) {
	rt := newTestRuntime(t)

	var leaked *Access
	testrequire.NoError(t, rt.Exclusive(func(a *Access) error {
		leaked = a
		return nil
	}))

	assert.PanicsWithError(t,
		"runtime invariant violated: engine access used outside an exclusive section",
		func() { leaked.Queue() },
	)
}

func TestScope_PanicsAfterRelease(t *testing.T) {
	rt := newTestRuntime(t)

	var leaked *Scope
	testrequire.NoError(t, rt.Scope(func(s *Scope) error {
		leaked = s
		return nil
	}))

	testrequire.NoError(t, rt.Exclusive(func(*Access) error {
		assert.Panics(t, func() { leaked.Global() }, "a scope is invalid once its function returns")
		return nil
	}))
}

func TestScope_ReleasedOnPanic(t *testing.T) {
	rt := newTestRuntime(t)

	var leaked *Scope
	assert.Panics(t, func() {
		_ = rt.Scope(func(s *Scope) error {
			leaked = s
			panic("script host bug")
		})
	})

	assert.False(t, leaked.open)
	assert.False(t, rt.access.held.Load(), "access is released on panic")
}

func TestScope_SetGet(t *testing.T) {
	rt := newTestRuntime(t)

	testrequire.NoError(t, rt.Scope(func(s *Scope) error {
		if err := s.Set("greeting", "hello"); err != nil {
			return err
		}
		assert.Equal(t, "hello", s.Get("greeting").String())
		return nil
	}))

	h, err := rt.Eval("greeting + ' world'")
	testrequire.NoError(t, err)
	assert.Equal(t, "hello world", stringOf(t, rt, h))
}

func TestScope_Call(t *testing.T) {
	rt := newTestRuntime(t)

	fn, err := rt.Eval("(function (a, b) { return a * b; })")
	testrequire.NoError(t, err)

	testrequire.NoError(t, rt.Scope(func(s *Scope) error {
		ret, err := s.Call(fn, s.ToValue(6), s.ToValue(7))
		testrequire.NoError(t, err)
		assert.Equal(t, int64(42), ret.ToInteger())
		return nil
	}))
}

func TestScope_CallThrows(t *testing.T) {
	rt := newTestRuntime(t)

	fn, err := rt.Eval(`(function () { throw new TypeError("nope"); })`)
	testrequire.NoError(t, err)

	testrequire.NoError(t, rt.Scope(func(s *Scope) error {
		_, err := s.Call(fn)

		var evalErr *EvalError
		testrequire.ErrorAs(t, err, &evalErr)
		assert.Equal(t, PhaseCall, evalErr.Phase)
		assert.Equal(t, "TypeError: nope", evalErr.Message)
		return nil
	}))
}

func TestScope_CallNotAFunction(t *testing.T) {
	rt := newTestRuntime(t)

	h, err := rt.Eval("42")
	testrequire.NoError(t, err)

	testrequire.NoError(t, rt.Scope(func(s *Scope) error {
		_, err := s.Call(h)
		assert.True(t, IsEvalError(err))
		return nil
	}))
}

func TestScope_ForeignHandle(t *testing.T) {
	a := newTestRuntime(t)
	b := newTestRuntime(t)

	h, err := a.Eval("1")
	testrequire.NoError(t, err)

	assert.Panics(t, func() { b.String(h) })
}

func TestAccess_RegisterModule(t *testing.T) {
	rt := newTestRuntime(t)

	testrequire.NoError(t, rt.Exclusive(func(a *Access) error {
		a.RegisterModule("answers", func(vm *goja.Runtime, module *goja.Object) {
			exports := module.Get("exports").(*goja.Object)
			_ = exports.Set("life", 42)
		})
		return nil
	}))

	h, err := rt.Eval(`require("answers").life`)
	testrequire.NoError(t, err)
	assert.Equal(t, "42", stringOf(t, rt, h))

	testrequire.NoError(t, rt.Scope(func(s *Scope) error {
		mod := s.Require("answers").ToObject(s.VM())
		assert.Equal(t, int64(42), mod.Get("life").ToInteger())
		return nil
	}))
}

type counter struct {
	n      int
	closed *[]string
	name   string
}

func (c *counter) Close() error {
	if c.closed == nil {
		return nil
	}
	*c.closed = append(*c.closed, c.name)
	return nil
}

type label string

func TestSlots_SetGet(t *testing.T) {
	rt := newTestRuntime(t)

	testrequire.NoError(t, rt.Exclusive(func(a *Access) error {
		_, ok := GetSlot[*counter](a)
		assert.False(t, ok)

		SetSlot(a, &counter{n: 1})
		SetSlot(a, label("main"))

		c := MustSlot[*counter](a)
		c.n++
		assert.Equal(t, label("main"), MustSlot[label](a))
		return nil
	}))

	testrequire.NoError(t, rt.Exclusive(func(a *Access) error {
		assert.Equal(t, 2, MustSlot[*counter](a).n, "slot state persists across exclusive sections")
		return nil
	}))
}

func TestSlots_MustSlotMissing(t *testing.T) {
	rt := newTestRuntime(t)

	testrequire.NoError(t, rt.Exclusive(func(a *Access) error {
		assert.Panics(t, func() { MustSlot[*counter](a) })
		return nil
	}))
}

type otherCounter struct{ *counter }

func TestSlots_CloseInReverseOrder(t *testing.T) {
	rt := newTestRuntime(t)

	var closed []string
	testrequire.NoError(t, rt.Exclusive(func(a *Access) error {
		SetSlot(a, &counter{name: "first", closed: &closed})
		SetSlot(a, otherCounter{&counter{name: "second", closed: &closed}})
		return nil
	}))

	testrequire.NoError(t, rt.Close())
	assert.Equal(t, []string{"second", "first"}, closed)
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("disk gone") }

func TestSlots_CloseError(t *testing.T) {
	rt := newTestRuntime(t)

	testrequire.NoError(t, rt.Exclusive(func(a *Access) error {
		SetSlot(a, failingCloser{})
		return nil
	}))

	err := rt.Close()
	testrequire.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestBridge_Send(t *testing.T) {
	rt := newTestRuntime(t)

	go func() {
		rt.Bridge().Send(func(a *Access) {
			_, err := a.Eval("var fromBridge = 'delivered'")
			assert.NoError(t, err)
		})
		rt.Queue().Send(StopTask())
	}()

	testrequire.NoError(t, runWithTimeout(t, rt))

	h, err := rt.Eval("fromBridge")
	testrequire.NoError(t, err)
	assert.Equal(t, "delivered", stringOf(t, rt, h))
}

func TestBridge_OrderedWithTasks(t *testing.T) {
	rt := newTestRuntime(t)

	var order []string
	rt.Queue().Send(TaskFunc(func(*Access) error {
		order = append(order, "task")
		return nil
	}))
	rt.Bridge().Send(func(*Access) {
		order = append(order, "bridge")
	})
	rt.Queue().Send(StopTask())

	testrequire.NoError(t, runWithTimeout(t, rt))
	assert.Equal(t, []string{"task", "bridge"}, order)
}

func TestBridge_SendAsyncSpawnsWork(t *testing.T) {
	rt := newTestRuntime(t, WithExitOnIdle(true))

	done := make(chan struct{})
	rt.Bridge().SendAsync(func(a *Access) SpawnFunc {
		return func(ctx context.Context) error {
			close(done)
			return nil
		}
	})

	testrequire.NoError(t, runWithTimeout(t, rt))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bridge work was not spawned")
	}
}

func TestBridge_SendAfterClose(t *testing.T) {
	rt := newTestRuntime(t)
	testrequire.NoError(t, rt.Close())

	assert.False(t, rt.Bridge().Send(func(*Access) {}))
}

func TestSpawn_PanicBecomesError(t *testing.T) {
	rt := newTestRuntime(t)

	h := rt.Spawn(func(context.Context) error {
		panic("kaboom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := h.Wait(ctx)
	testrequire.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Eventually(t, func() bool { return rt.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSpawn_ErrReportsOutcome(t *testing.T) {
	rt := newTestRuntime(t)
	want := errors.New("write failed")

	h := rt.Spawn(func(context.Context) error { return want })

	<-h.Done()
	assert.ErrorIs(t, h.Err(), want)
}
