// Package logger builds the structured logger shared by the server and workers.
package logger

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap-backed logr.Logger. Production uses JSON output; any
// other env gets the console encoder. level is a zap level name such as
// "debug" or "info".
func New(level, env string) (logr.Logger, *zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zapLog, err := cfg.Build()
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapr.NewLogger(zapLog), zapLog, nil
}

// AsynqLogger adapts a logr.Logger to asynq's Logger interface.
type AsynqLogger struct {
	Log logr.Logger
}

func (l AsynqLogger) Debug(args ...interface{}) { l.Log.V(1).Info(fmt.Sprint(args...)) }
func (l AsynqLogger) Info(args ...interface{})  { l.Log.Info(fmt.Sprint(args...)) }
func (l AsynqLogger) Warn(args ...interface{})  { l.Log.Info(fmt.Sprint(args...), "level", "warn") }
func (l AsynqLogger) Error(args ...interface{}) { l.Log.Error(nil, fmt.Sprint(args...)) }

// Fatal exits the process, as asynq expects.
func (l AsynqLogger) Fatal(args ...interface{}) {
	l.Log.Error(nil, fmt.Sprint(args...))
	os.Exit(1)
}
