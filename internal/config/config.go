// Package config loads the daemon configuration from defaults, a YAML file,
// LTTD_* environment variables and command-line flags, in that order.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/lttd/pkg/lttd"
)

// EnvPrefix is the prefix of environment overrides, e.g. LTTD_THREADS
const EnvPrefix = "LTTD"

// Keys shared by viper, the YAML file and the command-line flags
const (
	KeyChannelRoot   = "channel_root"
	KeyTraceDir      = "trace_dir"
	KeyThreads       = "threads"
	KeyFlightOnly    = "flight_only"
	KeyNormalOnly    = "normal_only"
	KeyAppend        = "append"
	KeyVerbose       = "verbose"
	KeyDaemon        = "daemon"
	KeyPollInterval  = "poll_interval"
	KeyDrainAttempts = "drain_attempts"
	KeyIgnoreHangup  = "ignore_hangup"
	KeyPipeSize      = "pipe_size"
	KeyLogLevel      = "log_level"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the daemon configuration
type Config struct {
	ChannelRoot   string        `yaml:"channel_root"`
	TraceDir      string        `yaml:"trace_dir"`
	Threads       int           `yaml:"threads"`
	FlightOnly    bool          `yaml:"flight_only"`
	NormalOnly    bool          `yaml:"normal_only"`
	Append        bool          `yaml:"append"`
	Verbose       bool          `yaml:"verbose"`
	Daemon        bool          `yaml:"daemon"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	DrainAttempts int           `yaml:"drain_attempts"`
	IgnoreHangup  bool          `yaml:"ignore_hangup"`
	PipeSize      int           `yaml:"pipe_size"`
	LogLevel      string        `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() *Config {
	return &Config{
		ChannelRoot:  lttd.DefaultChannelRoot,
		Threads:      DefaultThreads(),
		PollInterval: lttd.DefaultPollInterval,
		PipeSize:     1 << 20,
		LogLevel:     "info",
	}
}

// DefaultThreads is one worker per online logical CPU
func DefaultThreads() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// NewViper returns a viper instance carrying the defaults and the LTTD_*
// environment binding. configFile may be empty.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault(KeyChannelRoot, d.ChannelRoot)
	v.SetDefault(KeyTraceDir, d.TraceDir)
	v.SetDefault(KeyThreads, d.Threads)
	v.SetDefault(KeyFlightOnly, d.FlightOnly)
	v.SetDefault(KeyNormalOnly, d.NormalOnly)
	v.SetDefault(KeyAppend, d.Append)
	v.SetDefault(KeyVerbose, d.Verbose)
	v.SetDefault(KeyDaemon, d.Daemon)
	v.SetDefault(KeyPollInterval, d.PollInterval)
	v.SetDefault(KeyDrainAttempts, d.DrainAttempts)
	v.SetDefault(KeyIgnoreHangup, d.IgnoreHangup)
	v.SetDefault(KeyPipeSize, d.PipeSize)
	v.SetDefault(KeyLogLevel, d.LogLevel)

	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	return v
}

// Load reads the config file, if any, and builds a validated Config
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode reads the config file, if any, and builds a Config without
// validating it
func Decode(v *viper.Viper) (*Config, error) {
	if file := v.ConfigFileUsed(); file != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, NewConfigFileError("read", file, err.Error(),
				"check that the file exists and is valid YAML").WithCause(err)
		}
	}

	cfg := &Config{
		ChannelRoot:   v.GetString(KeyChannelRoot),
		TraceDir:      v.GetString(KeyTraceDir),
		Threads:       v.GetInt(KeyThreads),
		FlightOnly:    v.GetBool(KeyFlightOnly),
		NormalOnly:    v.GetBool(KeyNormalOnly),
		Append:        v.GetBool(KeyAppend),
		Verbose:       v.GetBool(KeyVerbose),
		Daemon:        v.GetBool(KeyDaemon),
		PollInterval:  v.GetDuration(KeyPollInterval),
		DrainAttempts: v.GetInt(KeyDrainAttempts),
		IgnoreHangup:  v.GetBool(KeyIgnoreHangup),
		PipeSize:      v.GetInt(KeyPipeSize),
		LogLevel:      strings.ToLower(v.GetString(KeyLogLevel)),
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var errs []ValidationError

	if c.TraceDir == "" {
		errs = append(errs, NewValidationErrorWithFix(KeyTraceDir,
			"trace directory is required",
			"name the directory the trace is written to",
			"lttd -t /tmp/trace"))
	}

	if c.ChannelRoot == "" {
		errs = append(errs, NewValidationError(KeyChannelRoot,
			"channel root is required",
			"point it at the debugfs channel folder, usually "+lttd.DefaultChannelRoot))
	}

	if c.Threads <= 0 {
		e := NewValidationError(KeyThreads,
			"thread count must be positive",
			fmt.Sprintf("use at least 1, this machine has %d CPUs", DefaultThreads()))
		e.CurrentValue = c.Threads
		errs = append(errs, e)
	}

	if c.FlightOnly && c.NormalOnly {
		errs = append(errs, NewValidationError(KeyFlightOnly,
			lttd.ErrConflictingFilters.Error(),
			"pass either -f or -n, not both"))
	}

	if c.PollInterval <= 0 {
		e := NewValidationError(KeyPollInterval,
			"poll interval must be positive",
			"use a duration such as 100ms")
		e.CurrentValue = c.PollInterval.String()
		errs = append(errs, e)
	}

	if c.DrainAttempts < 0 {
		errs = append(errs, NewValidationError(KeyDrainAttempts,
			"drain attempts cannot be negative",
			"use 0 to drain up to the channel's subbuffer count"))
	}

	if c.PipeSize < 0 {
		errs = append(errs, NewValidationError(KeyPipeSize,
			"pipe size cannot be negative",
			"use 0 to keep the kernel default"))
	}

	if !isValidLogLevel(c.LogLevel) {
		e := NewValidationError(KeyLogLevel,
			fmt.Sprintf("unknown log level %q", c.LogLevel),
			"pick one of the valid values")
		e.ValidValues = validLogLevels
		errs = append(errs, e)
	}

	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	for _, l := range validLogLevels {
		if l == level {
			return true
		}
	}
	return false
}

// CheckChannelRoot reports whether the channel root can be read
func (c *Config) CheckChannelRoot() error {
	info, err := os.Stat(c.ChannelRoot)
	switch {
	case os.IsPermission(err):
		return NewPermissionError(c.ChannelRoot, []string{"read"},
			"run as root or grant read access to debugfs")
	case os.IsNotExist(err):
		return NewConfigFileError("channel", c.ChannelRoot, "channel root does not exist",
			"mount debugfs and load the tracer modules, or pass -c").WithCause(err)
	case err != nil:
		return NewConfigError("channel", err.Error(), "check the channel root path").WithCause(err)
	case !info.IsDir():
		return NewConfigFileError("channel", c.ChannelRoot, "channel root is not a directory",
			"pass the folder holding the channel files with -c")
	}
	return nil
}

// EngineConfig maps the daemon configuration onto a session configuration
func (c *Config) EngineConfig(logger *zap.Logger) lttd.Config {
	return lttd.Config{
		ChannelRoot:   c.ChannelRoot,
		Threads:       c.Threads,
		FlightOnly:    c.FlightOnly,
		NormalOnly:    c.NormalOnly,
		Verbose:       c.Verbose,
		PollInterval:  c.PollInterval,
		DrainAttempts: c.DrainAttempts,
		IgnoreHangup:  c.IgnoreHangup,
		Logger:        logger,
	}
}

// LogLevelValue returns the zap level for the configured log level.
// Verbose forces debug.
func (c *Config) LogLevelValue() zap.AtomicLevel {
	if c.Verbose {
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return level
}

// YAML renders the configuration as a YAML document
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
