package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ExitOnFatal is switched off by tests so Fatal only logs.
var ExitOnFatal = true

// Init builds the process wide logger and installs it as zap's global one.
func Init(level string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.SetLevel(zapcore.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	return logger, nil
}

func Fatal(msg string, err error) {
	zap.L().Error(msg, zap.Error(err))
	if ExitOnFatal {
		_ = zap.L().Sync()
		os.Exit(1)
	}
}

func WarnIfErr(description string, err error) {
	if err != nil {
		zap.L().Warn(description, zap.Error(err))
	}
}

func ErrIfErr(description string, err error) {
	if err != nil {
		zap.L().Error(description, zap.Error(err))
	}
}
