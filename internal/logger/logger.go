package logger

import (
	"github.com/newthinker/upbot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new zap logger
func New(development bool) (*zap.Logger, error) {
	return build(config.LoggingConfig{Development: development})
}

// FromConfig builds the logger described by the logging section.
func FromConfig(cfg config.LoggingConfig) (*zap.Logger, error) {
	return build(cfg)
}

func build(lc config.LoggingConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if lc.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if lc.Level != "" {
		level, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}
	if lc.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, lc.File)
	}

	return cfg.Build(zap.Fields(zap.String("service", "upbot")))
}

// Must creates a logger or panics
func Must(development bool) *zap.Logger {
	log, err := New(development)
	if err != nil {
		panic(err)
	}
	return log
}
