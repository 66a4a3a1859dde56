// Command alan runs JavaScript on a single-threaded event loop.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/alan/internal/cli"
	"github.com/roach88/alan/internal/runtime"
)

func main() {
	code := run()
	runtime.Shutdown()
	os.Exit(code)
}

func run() int {
	if err := runtime.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "alan: %v\n", err)
		return cli.ExitFailure
	}
	return cli.Report(os.Stderr, cli.NewRootCommand().Execute())
}
