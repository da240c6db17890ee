package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yairfalse/lttd/internal/config"
)

// options holds the persistent flags shared by every subcommand
type options struct {
	cfgFile string
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the lttd command tree
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "lttd",
		Short: "Drain kernel trace channels into a trace directory",
		Long: `lttd reads the per-CPU relay channels the kernel tracer exposes under
debugfs and writes each of them to a trace file, mirroring the channel
tree under the trace directory.

Channels that appear while tracing (CPU hot-plug) are picked up, channels
that disappear are drained and closed. The daemon stops on SIGINT, SIGTERM
or SIGQUIT, or on its own once the tracer hung up every channel.`,
		Example: `  # Write a trace with one worker per CPU
  lttd -t /tmp/trace1

  # Continue an existing trace with 4 workers, flight recorder channels only
  lttd -t /tmp/trace1 -a -N 4 -f

  # Run in the background
  lttd -t /tmp/trace1 -d`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := opts.viper(cmd)
			if err != nil {
				return err
			}
			return runTrace(cmd, v)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	flags := rootCmd.Flags()
	flags.StringP("trace", "t", "", "directory name of the trace to write to, created if missing")
	flags.StringP("channels", "c", config.DefaultConfig().ChannelRoot, "root directory of the debugfs trace channels")
	flags.BoolP("append", "a", false, "append to a possibly existing trace")
	flags.IntP("threads", "N", config.DefaultThreads(), "number of worker threads")
	flags.BoolP("flight-only", "f", false, "dump only flight recorder channels")
	flags.BoolP("normal-only", "n", false, "dump only normal channels")
	flags.BoolP("daemon", "d", false, "run in background")
	flags.Duration("poll-interval", config.DefaultConfig().PollInterval, "longest wait between stop checks")
	flags.Int("drain-attempts", 0, "subbuffers read from a closing channel (0: its subbuffer count)")
	flags.Bool("ignore-hangup", false, "keep running after the tracer hung up every channel")
	flags.Int("pipe-size", config.DefaultConfig().PipeSize, "capacity requested for each worker pipe")

	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"trace":          config.KeyTraceDir,
	"channels":       config.KeyChannelRoot,
	"append":         config.KeyAppend,
	"threads":        config.KeyThreads,
	"flight-only":    config.KeyFlightOnly,
	"normal-only":    config.KeyNormalOnly,
	"daemon":         config.KeyDaemon,
	"poll-interval":  config.KeyPollInterval,
	"drain-attempts": config.KeyDrainAttempts,
	"ignore-hangup":  config.KeyIgnoreHangup,
	"pipe-size":      config.KeyPipeSize,
	"verbose":        config.KeyVerbose,
	"log-level":      config.KeyLogLevel,
}

// viper returns a viper instance with the flags of cmd bound on top of the
// file and environment sources
func (o *options) viper(cmd *cobra.Command) (*viper.Viper, error) {
	v := config.NewViper(o.cfgFile)

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, err
		}
	}
	return v, nil
}
