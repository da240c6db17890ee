package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/lttd/internal/config"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lttd v"+getVersion())
	assert.Contains(t, out, "Git Commit:")
}

func TestConfigShowDefaults(t *testing.T) {
	out, _, err := execute(t, "config", "show")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, config.DefaultConfig().ChannelRoot, cfg.ChannelRoot)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestConfigShowMergesFileAndEnvironment(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lttd.yaml")
	require.NoError(t, os.WriteFile(file, []byte("trace_dir: /tmp/from-file\nthreads: 2\n"), 0o644))
	t.Setenv("LTTD_THREADS", "8")

	out, _, err := execute(t, "config", "show", "--config", file, "--log-level", "warn")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "/tmp/from-file", cfg.TraceDir)
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestConfigValidate(t *testing.T) {
	_, stderr, err := execute(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.KeyTraceDir)
	assert.Contains(t, stderr, "lttd -t")

	file := filepath.Join(t.TempDir(), "lttd.yaml")
	require.NoError(t, os.WriteFile(file, []byte("trace_dir: /tmp/trace\n"), 0o644))
	out, _, err := execute(t, "config", "validate", "--config", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestRunRequiresTraceDir(t *testing.T) {
	_, _, err := execute(t, "-c", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.KeyTraceDir)
}

func TestRunRejectsConflictingFilters(t *testing.T) {
	_, _, err := execute(t, "-t", t.TempDir(), "-c", t.TempDir(), "-f", "-n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestRunRejectsMissingChannelRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	_, _, err := execute(t, "-t", t.TempDir(), "-c", missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel root does not exist")
}

func TestRunRejectsArguments(t *testing.T) {
	_, _, err := execute(t, "extra")
	assert.Error(t, err)
}

func TestFlagKeysAreRegistered(t *testing.T) {
	cmd := NewRootCommand()
	for name := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		assert.NotNil(t, flag, name)
	}
}
