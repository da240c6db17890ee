package lttd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, DefaultChannelRoot, cfg.ChannelRoot)
	assert.Equal(t, 1, cfg.Threads)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.NotNil(t, cfg.Backend)
	assert.NotNil(t, cfg.Logger)
	require.NoError(t, cfg.Validate())
}

func TestConfigSetDefaultsKeepsValues(t *testing.T) {
	cfg := Config{
		ChannelRoot:  "/tmp/channels",
		Threads:      4,
		PollInterval: time.Second,
	}
	cfg.SetDefaults()

	assert.Equal(t, "/tmp/channels", cfg.ChannelRoot)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		errText string
	}{
		{
			name:    "conflicting filters",
			mutate:  func(c *Config) { c.FlightOnly, c.NormalOnly = true, true },
			wantErr: ErrConflictingFilters,
		},
		{
			name:    "negative threads",
			mutate:  func(c *Config) { c.Threads = -1 },
			wantErr: ErrWorkerCount,
			errText: "threads must be positive",
		},
		{
			name:    "negative poll interval",
			mutate:  func(c *Config) { c.PollInterval = -time.Millisecond },
			errText: "poll_interval must be positive",
		},
		{
			name:    "negative drain attempts",
			mutate:  func(c *Config) { c.DrainAttempts = -2 },
			errText: "drain_attempts cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errText != "" {
				assert.Contains(t, err.Error(), tt.errText)
			}
		})
	}
}

func TestConfigFilter(t *testing.T) {
	cfg := Config{FlightOnly: true}
	f := cfg.filter()
	assert.True(t, f.flightOnly)
	assert.False(t, f.normalOnly)
}
