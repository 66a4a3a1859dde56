package runtime

import "time"

// TaskEvent describes one dispatched Task.
type TaskEvent struct {
	RuntimeID string
	Seq       int64
	Kind      string
	Stop      bool
	Err       error
	Started   time.Time
	Duration  time.Duration
}

// Observer is notified after every Task the Run loop dispatches.
// Called on the loop goroutine; implementations must not block.
type Observer interface {
	TaskExecuted(ev TaskEvent)
}

// MultiObserver fans a TaskEvent out to several observers in order.
type MultiObserver []Observer

// TaskExecuted implements Observer.
func (m MultiObserver) TaskExecuted(ev TaskEvent) {
	for _, o := range m {
		o.TaskExecuted(ev)
	}
}
