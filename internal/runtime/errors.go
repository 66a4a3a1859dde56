package runtime

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrClosed is returned when a closed Runtime is used.
	ErrClosed = errors.New("runtime: closed")

	// ErrAlreadyRunning is returned when Run is called while another Run is active.
	ErrAlreadyRunning = errors.New("runtime: already running")

	// ErrPlatformShutdown is returned by Init and New after Shutdown.
	ErrPlatformShutdown = errors.New("runtime: platform has been shut down")
)

// Phase identifies where an engine evaluation failed.
type Phase string

const (
	// PhaseCompile means the script did not compile.
	PhaseCompile Phase = "compile"

	// PhaseRun means the script threw while running.
	PhaseRun Phase = "run"

	// PhaseCall means a function called through a Handle threw.
	PhaseCall Phase = "call"

	// PhaseConvert means converting a value to a string threw.
	PhaseConvert Phase = "convert"
)

// EvalError is an engine-level evaluation failure: a script that failed to
// compile or threw. It is recoverable - callers absorb it and the loop keeps
// running.
type EvalError struct {
	// Phase is where the failure happened.
	Phase Phase

	// Message is the string form of the thrown value or the syntax error.
	Message string

	// Stack is the engine stack trace, if any.
	Stack string

	// Cause is the underlying engine error.
	Cause error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Message)
}

// Unwrap returns the engine error.
func (e *EvalError) Unwrap() error {
	return e.Cause
}

// IsEvalError reports whether err is (or wraps) an EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// unprintable stands in for a thrown value whose own conversion throws.
const unprintable = "[object Object]"

// newEvalError converts an engine error into an EvalError. Thrown values
// are converted under vm.Try: an object with a throwing toString, or none
// at all, must not escape as a Go panic.
func newEvalError(vm *goja.Runtime, phase Phase, err error) *EvalError {
	ee := &EvalError{Phase: phase, Cause: err}

	var ex *goja.Exception
	var interrupted *goja.InterruptedError
	switch {
	case errors.As(err, &interrupted):
		ee.Message = fmt.Sprintf("interrupted: %v", interrupted.Value())
	case errors.As(err, &ex):
		ee.Message = unprintable
		if v := ex.Value(); v != nil {
			if msg, convEx := toString(vm, v); convEx == nil {
				ee.Message = msg
			}
		}
		vm.Try(func() { ee.Stack = ex.String() })
	default:
		ee.Message = err.Error()
	}

	return ee
}

// toString converts v the way String(v) does in script, returning the
// exception if the conversion throws.
func toString(vm *goja.Runtime, v goja.Value) (s string, ex *goja.Exception) {
	ex = vm.Try(func() { s = v.String() })
	return s, ex
}

// InvariantError reports a defect in how the engine is being accessed:
// overlapping access, access or scope use after release, missing instance
// state. It is raised with panic, never returned.
type InvariantError struct {
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return "runtime invariant violated: " + e.Message
}

func invariant(format string, args ...any) *InvariantError {
	return &InvariantError{Message: fmt.Sprintf(format, args...)}
}
