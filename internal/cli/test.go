package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/alan/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite expectation files
	Filter string // case filter (glob pattern)
}

// TestResult holds the overall test result.
type TestResult struct {
	Cases  []harness.CaseResult `json:"cases"`
	Passed int                  `json:"passed"`
	Failed int                  `json:"failed"`
	Total  int                  `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scripts-dir>",
		Short: "Run script conformance cases",
		Long: `Run every .js script under a directory and compare its transcript with
the sibling .out file.

The transcript is the script's stdout, then its stderr after a "[stderr]"
line, then "Uncaught <message>" if the script threw.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed
  2 - Command error (invalid paths, etc.)

Examples:
  alan test ./scripts
  alan test ./scripts --filter "timer*"
  alan test ./scripts --update
  alan test ./scripts --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite expectation files from the current output")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter cases by glob pattern")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scripts directory not found: %s", dir))
	}

	cases, err := harness.Discover(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scripts", err)
	}

	cfg := opts.Config()
	runOpts := harness.Options{
		Timeout: cfg.TestTimeout,
		Strict:  cfg.Strict,
		Logger:  opts.Logger(cmd.ErrOrStderr()),
	}

	w := cmd.OutOrStdout()
	out := opts.formatter(w)
	result := TestResult{Cases: []harness.CaseResult{}, Total: len(cases)}

	for _, c := range cases {
		check := runCase(cmd, c, runOpts, opts.Update)
		result.Cases = append(result.Cases, check)

		if check.Pass {
			result.Passed++
		} else {
			result.Failed++
		}

		if out.JSON() {
			continue
		}
		switch {
		case check.Updated:
			fmt.Fprintf(w, "✓ %s (expectation updated)\n", check.Name)
		case check.Pass:
			fmt.Fprintf(w, "✓ %s\n", check.Name)
		default:
			fmt.Fprintf(w, "✗ %s\n", check.Name)
			for _, e := range check.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
	}

	var failure error
	if result.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d case(s) failed", result.Failed))
	}

	if out.JSON() {
		errMsg := ""
		if failure != nil {
			errMsg = failure.Error()
		}
		if err := out.Result(result, "E_TEST_FAILED", errMsg); err != nil {
			return err
		}
		return failure
	}

	if len(cases) == 0 {
		fmt.Fprintln(w, "No scripts found.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failure == nil {
		fmt.Fprintln(w, "✓ All cases passed")
	}
	return failure
}

func runCase(cmd *cobra.Command, c harness.Case, runOpts harness.Options, update bool) harness.CaseResult {
	res, err := harness.RunFile(cmd.Context(), c.Script, runOpts)
	if err != nil {
		return harness.CaseResult{Name: c.Name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}

	check, err := harness.Check(c, res, update)
	if err != nil {
		return harness.CaseResult{Name: c.Name, Errors: []string{err.Error()}}
	}
	return check
}
