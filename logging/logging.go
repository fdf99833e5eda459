// Package logging builds the zap loggers used by the server and commands.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"

	// Disables logging entirely.
	LevelNone = "none"
)

// A level above every level zap writes.
const disabledLevel = zapcore.FatalLevel + 1

// A logger whose level can be changed while it is in use.
//
// Loggers derived from it with `With` or `Named` follow the same level.
type Logger struct {
	*zap.Logger

	level zap.AtomicLevel
}

// Parse a configured log level.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == LevelNone {
		return disabledLevel, nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return lvl, errors.Wrapf(err, "invalid log level \"%s\"", level)
	}

	return lvl, nil
}

// Create a production logger at the given level.
func New(level string) (*zap.Logger, error) {
	logger, err := NewLeveled(level)
	if err != nil {
		return nil, err
	}

	return logger.Logger, nil
}

// Create a production logger whose level can be changed with SetLevel.
func NewLeveled(level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "could not build logger")
	}

	return &Logger{
		Logger: logger,
		level:  cfg.Level,
	}, nil
}

// Change the level of the logger.
//
// An invalid level leaves the current level in place.
func (l *Logger) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	l.level.SetLevel(lvl)
	return nil
}

// Create a logger or panic.
func MustNew(level string) *zap.Logger {
	logger, err := New(level)
	if err != nil {
		panic(err)
	}

	return logger
}
