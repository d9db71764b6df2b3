// Package logging builds the structured zap logger used throughout the
// solver, mirroring the teacher's CLI logger setup
// (zap.NewProductionConfig, zapcore.DebugLevel gated by --verbose).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hexsolve/internal/config"
)

// New builds a zap.Logger from cfg.Logging, with verbose overriding the
// configured level to Debug the way the teacher's --verbose flag does.
func New(cfg config.LoggingConfig, verbose int) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(levelFor(cfg.Level))
	if verbose > 0 {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !cfg.JSON {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func levelFor(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
