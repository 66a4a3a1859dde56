package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "alan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	assert.True(t, cfg.ExitOnIdle)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
log_format: json
strict: true
exit_on_idle: false
journal: runs.db
metrics_addr: ":9100"
test_timeout: 3s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Config{
		LogLevel:    "debug",
		LogFormat:   FormatJSON,
		Strict:      true,
		ExitOnIdle:  false,
		JournalPath: "runs.db",
		MetricsAddr: ":9100",
		TestTimeout: 3 * time.Second,
	}, cfg)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "log_levle: debug\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_levle")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log_level: debug\njournal: file.db\n")
	t.Setenv(envLogLevel, "error")
	t.Setenv(envJournal, "env.db")
	t.Setenv(envStrict, "true")
	t.Setenv(envTestTimeout, "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.JournalPath)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 250*time.Millisecond, cfg.TestTimeout)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv(envStrict, "maybe")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), envStrict)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "unsupported log level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "unsupported log format"},
		{"zero timeout", func(c *Config) { c.TestTimeout = 0 }, "test timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, FormatJSON)

	logger.Debug("hidden")
	logger.Info("runtime starting", "runtime_id", "rt-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "runtime starting", entry["msg"])
	assert.Equal(t, "rt-1", entry["runtime_id"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn, FormatText)

	logger.Info("hidden")
	logger.Warn("timer callback threw", "timer_id", 3)

	assert.Contains(t, buf.String(), "timer_id=3")
	assert.NotContains(t, buf.String(), "hidden")
}
