package journal

import (
	"context"
	"log/slog"

	"github.com/roach88/alan/internal/runtime"
)

// Recorder is a runtime.Observer that writes every TaskEvent to a Journal.
// Write failures are logged, never returned to the loop.
type Recorder struct {
	journal *Journal
	logger  *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(j *Journal, logger *slog.Logger) *Recorder {
	return &Recorder{journal: j, logger: logger}
}

// TaskExecuted implements runtime.Observer.
func (r *Recorder) TaskExecuted(ev runtime.TaskEvent) {
	if err := r.journal.WriteTask(context.Background(), RecordFromEvent(ev)); err != nil {
		r.logger.Warn("journal write failed",
			"runtime_id", ev.RuntimeID,
			"seq", ev.Seq,
			"error", err,
		)
	}
}
