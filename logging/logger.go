// Package logging builds the router's named, leveled zap loggers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps the monitoring.logLevel config string onto a
// zapcore.Level, defaulting to info on an unrecognized value rather than
// failing startup over a cosmetic setting.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New builds a named, leveled *zap.SugaredLogger. outputs are zap sink URLs
// ("stdout", "stderr", or a file path); an empty slice defaults to stdout.
func New(name string, level zapcore.Level, outputs []string) (*zap.SugaredLogger, error) {
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = outputs
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger %q: %w", name, err)
	}
	return l.Named(name).Sugar(), nil
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
