package timers

import (
	"context"
	"sync"

	"github.com/roach88/alan/internal/runtime"
)

// Observer is notified of timer lifecycle events. Registered and fired
// events arrive on the loop goroutine; cancellations may also arrive from
// Runtime.Close.
type Observer interface {
	TimerRegistered(id int64, repeat bool)
	TimerFired(id int64, repeat bool)
	TimerCancelled(id int64)
}

// Storage holds the live timers of one Runtime. It lives in an instance
// slot and is closed with the Runtime.
//
// Ids come from a monotonic clock: the first timer is 1 and ids are never
// reused, even after cancellation.
type Storage struct {
	clock    *runtime.Clock
	observer Observer

	mu      sync.Mutex
	records map[int64]context.CancelFunc
}

// NewStorage creates empty timer storage. o may be nil.
func NewStorage(o Observer) *Storage {
	return &Storage{
		clock:    runtime.NewClock(),
		observer: o,
		records:  make(map[int64]context.CancelFunc),
	}
}

// Register allocates the next timer id and a context derived from parent
// that is cancelled when the timer is.
func (s *Storage) Register(parent context.Context, repeat bool) (int64, context.Context) {
	id := s.clock.Next()
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.records[id] = cancel
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.TimerRegistered(id, repeat)
	}
	return id, ctx
}

// Cancel removes the timer and cancels its context. Unknown ids (never
// issued, already cancelled, one-shots that already fired) are a no-op and
// return false.
func (s *Storage) Cancel(id int64) bool {
	cancel, ok := s.take(id)
	if !ok {
		return false
	}
	cancel()

	if s.observer != nil {
		s.observer.TimerCancelled(id)
	}
	return true
}

// Has reports whether id is a live timer.
func (s *Storage) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[id]
	return ok
}

// Len returns the number of live timers.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// Close cancels every live timer.
func (s *Storage) Close() error {
	s.mu.Lock()
	records := s.records
	s.records = make(map[int64]context.CancelFunc)
	s.mu.Unlock()

	for id, cancel := range records {
		cancel()
		if s.observer != nil {
			s.observer.TimerCancelled(id)
		}
	}
	return nil
}

// expire retires a one-shot timer once it has fired.
func (s *Storage) expire(id int64) {
	if cancel, ok := s.take(id); ok {
		cancel()
	}
}

func (s *Storage) fired(id int64, repeat bool) {
	if s.observer != nil {
		s.observer.TimerFired(id, repeat)
	}
}

func (s *Storage) take(id int64) (context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.records[id]
	if ok {
		delete(s.records, id)
	}
	return cancel, ok
}
