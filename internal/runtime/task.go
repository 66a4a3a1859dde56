package runtime

import "fmt"

// Task is a unit of deferred work executed by the Run loop.
//
// Execute runs with exclusive engine access. It must not block on unrelated
// I/O; blocking work belongs in spawned work that re-enters with a new Task.
// An error returned from Execute is fatal: Run stops and returns it.
//
// Stop is queried after Execute. Returning true ends the Run loop; nothing
// queued afterwards is executed.
type Task interface {
	Execute(a *Access) error
	Stop() bool
}

// TaskFunc adapts a function to a non-stopping Task.
type TaskFunc func(a *Access) error

// Execute calls f(a).
func (f TaskFunc) Execute(a *Access) error {
	return f(a)
}

// Stop always returns false.
func (TaskFunc) Stop() bool {
	return false
}

// Kind names the task in logs and observers.
func (TaskFunc) Kind() string {
	return "func"
}

// TaskKind returns a task's kind: its Kind() method if it has one,
// otherwise its Go type.
func TaskKind(t Task) string {
	if k, ok := t.(interface{ Kind() string }); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", t)
}

type stopTask struct{}

// StopTask returns a task that does nothing and stops the loop.
func StopTask() Task {
	return stopTask{}
}

func (stopTask) Execute(*Access) error { return nil }
func (stopTask) Stop() bool            { return true }
func (stopTask) Kind() string          { return "stop" }

type failTask struct {
	err error
}

// FailTask returns a task whose execution fails with err.
// Spawned work uses it to surface a fatal host error (e.g. a failed write)
// through the loop.
func FailTask(err error) Task {
	return failTask{err: err}
}

func (t failTask) Execute(*Access) error { return t.err }
func (failTask) Stop() bool              { return false }
func (failTask) Kind() string            { return "fail" }
