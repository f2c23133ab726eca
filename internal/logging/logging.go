// Package logging builds the process logger: zap underneath, logr for
// components, and slog for the agent engine and tool router.
package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoder and level.
type Options struct {
	Development bool
	Level       string
	Verbose     bool
}

// New returns a logr.Logger backed by zap, plus the zap logger so the caller
// can Sync it on exit.
func New(opts Options) (logr.Logger, *zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return logr.Discard(), nil, err
	}
	if opts.Verbose && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}

	var zcfg zap.Config
	if opts.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	zapLog, err := zcfg.Build()
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("build zap logger: %w", err)
	}
	return zapr.NewLogger(zapLog), zapLog, nil
}

// ParseLevel accepts zap level names plus the WARNING/CRITICAL spellings
// found in older config files. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical", "fatal":
		return zapcore.FatalLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Slog adapts a logr.Logger for packages that log through log/slog.
func Slog(l logr.Logger) *slog.Logger {
	return slog.New(logr.ToSlogHandler(l))
}
