package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/lttd/pkg/lttd"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, lttd.DefaultChannelRoot, cfg.ChannelRoot)
	assert.Equal(t, lttd.DefaultPollInterval, cfg.PollInterval)
	assert.Positive(t, cfg.Threads)
	assert.Equal(t, "info", cfg.LogLevel)

	// A trace directory has no sensible default
	err := cfg.Validate()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.Has(KeyTraceDir))
	assert.Len(t, verrs.Errors, 1)
}

func TestDefaultThreads(t *testing.T) {
	assert.Positive(t, DefaultThreads())
}

func TestLoadFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lttd.yaml")
	content := `
channel_root: /mnt/debug/ltt
trace_dir: /var/trace/run1
threads: 3
flight_only: true
poll_interval: 250ms
log_level: WARN
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	cfg, err := Load(NewViper(file))
	require.NoError(t, err)

	assert.Equal(t, "/mnt/debug/ltt", cfg.ChannelRoot)
	assert.Equal(t, "/var/trace/run1", cfg.TraceDir)
	assert.Equal(t, 3, cfg.Threads)
	assert.True(t, cfg.FlightOnly)
	assert.False(t, cfg.NormalOnly)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(NewViper(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)

	var cerr ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "read", cerr.Type)
	assert.NotNil(t, cerr.Unwrap())
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lttd.yaml")
	require.NoError(t, os.WriteFile(file, []byte("trace_dir: /from/file\nthreads: 2\n"), 0o644))

	t.Setenv("LTTD_THREADS", "6")
	t.Setenv("LTTD_APPEND", "true")

	cfg, err := Load(NewViper(file))
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.TraceDir)
	assert.Equal(t, 6, cfg.Threads)
	assert.True(t, cfg.Append)
}

func TestLoadExplicitValueOverridesEnvironment(t *testing.T) {
	t.Setenv("LTTD_TRACE_DIR", "/from/env")

	v := NewViper("")
	v.Set(KeyTraceDir, "/from/flag")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.TraceDir)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		ChannelRoot:   "",
		TraceDir:      "/tmp/trace",
		Threads:       0,
		FlightOnly:    true,
		NormalOnly:    true,
		PollInterval:  0,
		DrainAttempts: -1,
		PipeSize:      -1,
		LogLevel:      "loud",
	}

	err := cfg.Validate()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	for _, field := range []string{
		KeyChannelRoot, KeyThreads, KeyFlightOnly, KeyPollInterval,
		KeyDrainAttempts, KeyPipeSize, KeyLogLevel,
	} {
		assert.True(t, verrs.Has(field), field)
	}
	assert.False(t, verrs.Has(KeyTraceDir))
	assert.Contains(t, err.Error(), "multiple validation errors")
	assert.NotEmpty(t, verrs.GetFixSuggestions())
}

func TestValidateConflictingFilters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceDir = "/tmp/trace"
	cfg.FlightOnly = true
	cfg.NormalOnly = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), lttd.ErrConflictingFilters.Error())
}

func TestCheckChannelRoot(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{ChannelRoot: dir}
	assert.NoError(t, cfg.CheckChannelRoot())

	cfg.ChannelRoot = filepath.Join(dir, "missing")
	err := cfg.CheckChannelRoot()
	var cerr ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.ChannelRoot = file
	assert.Error(t, cfg.CheckChannelRoot())
}

func TestEngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelRoot = "/channels"
	cfg.Threads = 5
	cfg.NormalOnly = true
	cfg.DrainAttempts = 2

	logger := zaptest.NewLogger(t)
	ec := cfg.EngineConfig(logger)

	assert.Equal(t, "/channels", ec.ChannelRoot)
	assert.Equal(t, 5, ec.Threads)
	assert.True(t, ec.NormalOnly)
	assert.Equal(t, 2, ec.DrainAttempts)
	assert.Same(t, logger, ec.Logger)
	assert.Nil(t, ec.Backend)
}

func TestLogLevelValue(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, zap.InfoLevel, cfg.LogLevelValue().Level())

	cfg.LogLevel = "error"
	assert.Equal(t, zap.ErrorLevel, cfg.LogLevelValue().Level())

	cfg.Verbose = true
	assert.Equal(t, zap.DebugLevel, cfg.LogLevelValue().Level())
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceDir = "/tmp/trace"
	cfg.PollInterval = 50 * time.Millisecond

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "poll_interval: 50ms")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, *cfg, back)
}
