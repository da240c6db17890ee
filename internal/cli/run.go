package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yairfalse/lttd/internal/config"
	"github.com/yairfalse/lttd/internal/shutdown"
	"github.com/yairfalse/lttd/internal/tracewriter"
	"github.com/yairfalse/lttd/pkg/lttd"
)

const shutdownTimeout = 30 * time.Second

// runTrace drains the channel tree into the trace directory until stopped
func runTrace(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	if cfg.Daemon && !isDaemonChild() {
		pid, err := daemonize()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "lttd running in background, pid %d\n", pid)
		return nil
	}

	if err := cfg.CheckChannelRoot(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	writer, err := tracewriter.New(tracewriter.Config{
		TraceDir: cfg.TraceDir,
		Append:   cfg.Append,
		Verbose:  cfg.Verbose,
		PipeSize: cfg.PipeSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	session, err := lttd.New[*tracewriter.File](writer, cfg.EngineConfig(logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Channel root: %s\n", cfg.ChannelRoot)
	fmt.Fprintf(out, "Trace directory: %s\n", cfg.TraceDir)

	handler := shutdown.NewHandler(shutdownTimeout, logger)
	handler.Register("session", func(ctx context.Context) error {
		if err := session.Stop(); err != nil && !errors.Is(err, lttd.ErrSessionEnded) {
			return err
		}
		return writer.Wait(ctx)
	})
	handler.Start()
	defer handler.Stop()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("trace session failed: %w", err)
	}

	stats := session.Statistics()
	logger.Info("Trace complete",
		zap.String("session_id", stats.SessionID),
		zap.Int64("channels", stats.ChannelsOpened),
		zap.Int64("subbuffers", stats.SubbuffersRead),
		zap.Int64("bytes", writer.BytesWritten()),
		zap.Int64("channel_errors", stats.ChannelErrors),
		zap.Int64("corrupt_subbuffers", stats.CorruptSubbuffers),
		zap.Duration("uptime", stats.Uptime))
	return nil
}
