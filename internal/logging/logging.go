// Package logging builds the zap loggers used by the melae tools.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option adjusts the zap configuration before the logger is built.
type Option func(*zap.Config)

// WithLevel sets the minimum level ("debug", "info", "warn", "error").
// Unknown names fall back to info.
func WithLevel(level string) Option {
	return func(cfg *zap.Config) {
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	}
}

// WithDevelopment switches to zap's human readable console encoder.
func WithDevelopment(dev bool) Option {
	return func(cfg *zap.Config) {
		if !dev {
			return
		}
		level := cfg.Level
		fields := cfg.InitialFields
		*cfg = zap.NewDevelopmentConfig()
		cfg.Level = level
		cfg.InitialFields = fields
		cfg.OutputPaths = []string{"stderr"}
	}
}

// WithFields attaches fields to every log line.
func WithFields(fields map[string]interface{}) Option {
	return func(cfg *zap.Config) {
		if cfg.InitialFields == nil {
			cfg.InitialFields = map[string]interface{}{}
		}
		for key, value := range fields {
			if key == "" {
				continue
			}
			cfg.InitialFields[key] = value
		}
	}
}

// New builds a logger writing JSON to stderr at info level unless options
// say otherwise.
func New(options ...Option) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	for _, option := range options {
		option(&cfg)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
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

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Badger adapts a zap logger to badger's logging interface. Info and debug
// chatter from badger is logged at debug level.
type Badger struct {
	S *zap.SugaredLogger
}

// NewBadger wraps l for badger.
func NewBadger(l *zap.Logger) Badger {
	return Badger{S: OrNop(l).Named("badger").Sugar()}
}

func (b Badger) Errorf(f string, v ...interface{})   { b.S.Errorf(f, v...) }
func (b Badger) Warningf(f string, v ...interface{}) { b.S.Warnf(f, v...) }
func (b Badger) Infof(f string, v ...interface{})    { b.S.Debugf(f, v...) }
func (b Badger) Debugf(f string, v ...interface{})   { b.S.Debugf(f, v...) }
