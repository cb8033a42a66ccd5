package pkg

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the default sugared logger. With debug disabled only
// warnings and errors are emitted.
func NewLogger(debug bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// NopLogger discards everything. Used as the default in tests.
func NopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
