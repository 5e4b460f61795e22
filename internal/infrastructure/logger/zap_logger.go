package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the production JSON logger writing to stdout. Unknown levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	return build(level, []string{"stdout"}, true)
}

// NewFileLogger writes JSON lines to path as well as stdout. Used for the action journal,
// so sampling is off: every order action must land in the file.
func NewFileLogger(path, level string) (*zap.Logger, error) {
	return build(level, []string{"stdout", path}, false)
}

func build(level string, outputs []string, sampled bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	// Parse level
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(l)
	config.OutputPaths = outputs
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !sampled {
		config.Sampling = nil
	}

	return config.Build()
}
