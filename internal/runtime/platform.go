package runtime

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

type platformState int

const (
	platformNew platformState = iota
	platformReady
	platformShutdown
)

// platform is process-wide engine state. It is initialized at most once and
// never reused after Shutdown.
var platform struct {
	mu    sync.Mutex
	state platformState

	// flush is an empty program. Running it makes the engine drain its job
	// queue; programs are immutable and shared by every Runtime.
	flush *goja.Program
}

// Init prepares the process-wide engine platform.
// Idempotent. Returns ErrPlatformShutdown once Shutdown has been called.
func Init() error {
	platform.mu.Lock()
	defer platform.mu.Unlock()

	switch platform.state {
	case platformReady:
		return nil
	case platformShutdown:
		return ErrPlatformShutdown
	}

	flush, err := goja.Compile("<flush>", "", false)
	if err != nil {
		return fmt.Errorf("compile job flush program: %w", err)
	}

	platform.flush = flush
	platform.state = platformReady
	return nil
}

// Shutdown disposes the process-wide platform. Irreversible: New fails with
// ErrPlatformShutdown afterwards.
func Shutdown() {
	platform.mu.Lock()
	defer platform.mu.Unlock()

	platform.state = platformShutdown
	platform.flush = nil
}

// flushProgram returns the shared job flush program, initializing the
// platform if needed.
func flushProgram() (*goja.Program, error) {
	if err := Init(); err != nil {
		return nil, err
	}

	platform.mu.Lock()
	defer platform.mu.Unlock()
	return platform.flush, nil
}
