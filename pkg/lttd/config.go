package lttd

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPollInterval bounds how long a worker waits before re-checking
	// the stop flag
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultChannelRoot is where LTTng exposes its channels
	DefaultChannelRoot = "/sys/kernel/debug/ltt"
)

// Config is the immutable configuration of a Session
type Config struct {
	// ChannelRoot is the root folder of the channel tree
	ChannelRoot string

	// Threads is the number of workers (default: 1)
	Threads int

	// FlightOnly records only flight-recorder channels
	FlightOnly bool

	// NormalOnly records only normal channels
	NormalOnly bool

	// Verbose logs every subbuffer transfer at debug level
	Verbose bool

	// PollInterval is the longest a worker blocks between stop checks
	PollInterval time.Duration

	// DrainAttempts bounds how many subbuffers are read from a channel when
	// it is closing. Zero means the channel's subbuffer count.
	DrainAttempts int

	// IgnoreHangup keeps the session running after every channel hung up.
	// By default the session stops itself once the kernel finished the trace.
	IgnoreHangup bool

	// Backend opens and polls channel buffers (default: kernel relay backend)
	Backend Backend

	// Logger (default: no-op)
	Logger *zap.Logger
}

// SetDefaults applies default values to unset fields
func (c *Config) SetDefaults() {
	if c.ChannelRoot == "" {
		c.ChannelRoot = DefaultChannelRoot
	}

	if c.Threads == 0 {
		c.Threads = 1
	}

	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.Backend == nil {
		c.Backend = NewRelayBackend()
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Validate performs configuration validation
func (c *Config) Validate() error {
	if c.FlightOnly && c.NormalOnly {
		return ErrConflictingFilters
	}

	if c.Threads <= 0 {
		return fmt.Errorf("%w: threads must be positive, got %d", ErrWorkerCount, c.Threads)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}

	if c.DrainAttempts < 0 {
		return fmt.Errorf("drain_attempts cannot be negative, got %d", c.DrainAttempts)
	}

	return nil
}

func (c *Config) filter() channelFilter {
	return channelFilter{flightOnly: c.FlightOnly, normalOnly: c.NormalOnly}
}
