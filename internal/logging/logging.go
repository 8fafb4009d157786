// Package logging builds the zap logger. The terminal UI owns stdout, so
// logs are written to a file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FlushTimeout bounds the Sentry flush on exit.
const FlushTimeout = 2 * time.Second

// ParseLevel maps a config level name to a zap level. Unknown names are info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "error":
		return zap.ErrorLevel
	case "warn", "warning":
		return zap.WarnLevel
	default:
		return zap.InfoLevel
	}
}

// New builds a production JSON logger writing to path.
func New(level, path string, opts ...zap.Option) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// InitSentry initialises the global Sentry client. It does nothing and
// returns false when dsn is empty.
func InitSentry(dsn, release string) (bool, error) {
	if dsn == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Release:     release,
		Environment: environment(),
	})
	if err != nil {
		return false, fmt.Errorf("sentry init: %w", err)
	}
	return true, nil
}

func environment() string {
	if env := os.Getenv("CAPTIONS_ENV"); env != "" {
		return env
	}
	return "production"
}

// SentryHook forwards error-level entries to hub.
func SentryHook(hub *sentry.Hub) zap.Option {
	return zap.Hooks(func(e zapcore.Entry) error {
		if e.Level < zapcore.ErrorLevel {
			return nil
		}
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentryLevel(e.Level))
			if e.LoggerName != "" {
				scope.SetTag("logger", e.LoggerName)
			}
			if e.Caller.Defined {
				scope.SetTag("caller", e.Caller.TrimmedPath())
			}
			hub.CaptureMessage(e.Message)
		})
		return nil
	})
}

func sentryLevel(l zapcore.Level) sentry.Level {
	switch l {
	case zapcore.ErrorLevel:
		return sentry.LevelError
	case zapcore.WarnLevel:
		return sentry.LevelWarning
	case zapcore.DebugLevel:
		return sentry.LevelDebug
	case zapcore.InfoLevel:
		return sentry.LevelInfo
	}
	return sentry.LevelFatal
}
