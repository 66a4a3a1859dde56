// Package console installs a console object whose methods write one line per
// call: the string forms of the arguments joined by single spaces.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"

	"github.com/roach88/alan/internal/runtime"
)

// ModuleName is the require() name of the console module.
const ModuleName = "console"

// Extension is the console runtime.Extension.
//
// log, info and debug write to Out; warn and error write to Err.
type Extension struct {
	Out io.Writer
	Err io.Writer
}

// New creates the console extension. A nil errOut sends everything to out.
func New(out, errOut io.Writer) *Extension {
	if errOut == nil {
		errOut = out
	}
	return &Extension{Out: out, Err: errOut}
}

// Name implements runtime.Extension.
func (e *Extension) Name() string {
	return ModuleName
}

// Install registers the console module and binds it as the console global.
func (e *Extension) Install(a *runtime.Access) error {
	a.RegisterModule(ModuleName, func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		_ = exports.Set("log", printer(vm, e.Out))
		_ = exports.Set("info", printer(vm, e.Out))
		_ = exports.Set("debug", printer(vm, e.Out))
		_ = exports.Set("warn", printer(vm, e.Err))
		_ = exports.Set("error", printer(vm, e.Err))
	})

	return a.Scope(func(s *runtime.Scope) error {
		if err := s.Set(ModuleName, s.Require(ModuleName)); err != nil {
			return fmt.Errorf("bind console: %w", err)
		}
		return nil
	})
}

// Format renders console arguments as one line, without the newline.
func Format(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	return strings.Join(parts, " ")
}

func printer(vm *goja.Runtime, w io.Writer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if _, err := fmt.Fprintln(w, Format(call.Arguments)); err != nil {
			panic(vm.NewGoError(fmt.Errorf("console write: %w", err)))
		}
		return goja.Undefined()
	}
}
