// Package harness runs scripts on a baseline Runtime and checks what they
// printed.
//
// # Case Format
//
// A case is a script file with a sibling expectation file:
//
//	testdata/scripts/ordering.js
//	testdata/scripts/ordering.out
//
// The expectation is the script's transcript: everything written to stdout,
// then stderr under a "[stderr]" marker, then an "Uncaught <message>" line
// if evaluating the script threw, then an "error: <message>" line if the
// event loop failed.
//
// # Determinism
//
// Each case runs on a fresh Runtime with exit-on-idle, a fixed runtime ID
// and a timeout. Output order is the order in which Tasks ran, so scripts
// that race timers must leave wide margins between delays.
//
// # Usage
//
//	cases, err := harness.Discover("testdata/scripts", "")
//	for _, c := range cases {
//	    res, err := harness.RunFile(ctx, c.Script, harness.Options{})
//	    check, err := harness.Check(c, res, false)
//	}
//
// In Go tests, AssertGolden compares a transcript against
// testdata/golden/<name>.golden (regenerate with `go test -update`).
package harness
