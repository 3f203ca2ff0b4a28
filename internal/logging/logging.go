// Package logging builds the zap logger used across stctl.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tessro/stctl/internal/config"
)

// New builds a logger from cfg. Output goes to stderr unless cfg.File is set.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.Development = false
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = level > zapcore.DebugLevel
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	return zc.Build()
}

// Quiet returns a logger that only reports errors to stderr, for one-shot commands.
func Quiet(cfg config.LogConfig) *zap.Logger {
	if cfg.Level == "" || cfg.Level == "info" {
		cfg.Level = "error"
	}
	log, err := New(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
