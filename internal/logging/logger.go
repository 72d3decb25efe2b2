// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger. It is a no-op until Init or Set is called,
// so packages may log during early startup without nil checks.
var L = zap.NewNop()

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// Init builds a logger from the configured level and encoding and installs it
// as the package logger. Encoding "console" selects the development config;
// anything else gets the production JSON config.
func Init(level, encoding string) (*zap.Logger, error) {
	logger, err := New(encoding == "console")
	if err != nil {
		return nil, err
	}
	if level != "" {
		parsed, perr := zapcore.ParseLevel(level)
		if perr != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, perr)
		}
		logger = logger.WithOptions(zap.IncreaseLevel(parsed))
	}
	Set(logger)
	return logger, nil
}

// Set replaces the package logger. Passing nil restores the no-op logger.
func Set(logger *zap.Logger) {
	if logger == nil {
		L = zap.NewNop()
		return
	}
	L = logger
}

// Sync flushes the package logger. Safe to call on the no-op logger.
func Sync() {
	_ = L.Sync()
}
