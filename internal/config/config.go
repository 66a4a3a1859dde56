// Package config loads alan's settings: defaults, then an optional YAML
// file, then ALAN_* environment variables. Command-line flags are applied
// last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envLogLevel    = "ALAN_LOG_LEVEL"
	envLogFormat   = "ALAN_LOG_FORMAT"
	envStrict      = "ALAN_STRICT"
	envJournal     = "ALAN_JOURNAL"
	envMetricsAddr = "ALAN_METRICS_ADDR"
	envTestTimeout = "ALAN_TEST_TIMEOUT"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds alan's settings.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`

	// Strict compiles scripts in strict mode.
	Strict bool `yaml:"strict"`

	// ExitOnIdle ends `alan run` once no work is left. Disable to keep the
	// loop alive until interrupted.
	ExitOnIdle bool `yaml:"exit_on_idle"`

	// JournalPath enables the execution journal when non-empty.
	JournalPath string `yaml:"journal"`

	// MetricsAddr enables the metrics server when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`

	// TestTimeout bounds each script run by `alan test`.
	TestTimeout time.Duration `yaml:"test_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:    "warn",
		LogFormat:   FormatText,
		ExitOnIdle:  true,
		TestTimeout: 10 * time.Second,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true) // Reject unknown fields
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(envLogFormat); ok && v != "" {
		c.LogFormat = v
	}
	if v, ok := lookup(envJournal); ok {
		c.JournalPath = v
	}
	if v, ok := lookup(envMetricsAddr); ok {
		c.MetricsAddr = v
	}
	if v, ok := lookup(envStrict); ok && v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envStrict, err)
		}
		c.Strict = strict
	}
	if v, ok := lookup(envTestTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envTestTimeout, err)
		}
		c.TestTimeout = d
	}
	return nil
}

// Validate checks that every field holds a supported value.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("unsupported log format %q (want %s or %s)", c.LogFormat, FormatText, FormatJSON)
	}
	if c.TestTimeout <= 0 {
		return fmt.Errorf("test timeout must be positive, got %s", c.TestTimeout)
	}
	return nil
}

// Level returns the configured slog level. Call after Validate.
func (c Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", s)
	}
}

// NewLogger creates a structured logger writing to w at level, in the text
// or JSON format.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
