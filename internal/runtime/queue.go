package runtime

import "sync"

// Queue is the event loop's unbounded FIFO of Tasks.
//
// Send is safe from any goroutine, including spawned work that must never
// touch the engine directly. Only Runtime.Run consumes the queue.
//
// The queue uses a size-1 signal channel so the consumer can wait with a
// select alongside context cancellation.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{} // Buffered, size 1. Closed on Close.
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		tasks:  make([]Task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Send appends a task to the back of the queue.
// Non-blocking. Returns false if the queue is closed.
func (q *Queue) Send(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)
	q.notifyLocked()

	return true
}

// TryDequeue removes and returns the front task without blocking.
// Returns (nil, false) if the queue is empty.
func (q *Queue) TryDequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]

	// Nil out the slot so the dequeued task (and any handles it carries)
	// can be collected.
	q.tasks[0] = nil

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Wait returns a channel that signals when tasks may be available or the
// loop should re-check its exit conditions. It is closed once the queue is
// closed.
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more tasks will be accepted.
// Tasks already queued stay available to TryDequeue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// notify wakes the consumer without enqueuing anything.
func (q *Queue) notify() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notifyLocked()
}

func (q *Queue) notifyLocked() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
