package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yairfalse/lttd/internal/config"
)

// newLogger builds a development logger in verbose mode and a production
// logger otherwise
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	if cfg.Verbose || cfg.LogLevel == "debug" {
		logConfig = zap.NewDevelopmentConfig()
	}
	logConfig.Level = cfg.LogLevelValue()

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.Named("lttd"), nil
}
