package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/alan/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	config *config.Config // set by the root command before any subcommand runs
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the alan CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "alan",
		Short: "alan - a host runtime for JavaScript",
		Long: `alan runs JavaScript on a single-threaded event loop with console
output and timers.

Scripts get console.log/info/debug/warn/error, setTimeout, setInterval,
clearTimeout and clearInterval. Configuration comes from --config (YAML),
then ALAN_* environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.config = &cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}

// Config returns the loaded configuration, or the defaults when the command
// runs without the root command (as in tests).
func (o *RootOptions) Config() config.Config {
	if o.config != nil {
		return *o.config
	}
	return config.Default()
}

// Logger builds the command logger: the configured level and format, or
// debug when --verbose is set.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	cfg := o.Config()
	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return config.NewLogger(w, level, cfg.LogFormat)
}

func (o *RootOptions) formatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: w}
}
