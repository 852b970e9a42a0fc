package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/m-mizutani/clog"
)

type ctxLoggerKey struct{}

var (
	fallback   = New("info", os.Stderr)
	fallbackMu sync.RWMutex
)

// ParseLevel maps --log-level text to a slog level. ok is false for unknown
// text, which callers treat as info.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New builds the convgen console logger on w, or stderr when w is nil.
// goerr values attached to errors are expanded into log attributes.
func New(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	lv, ok := ParseLevel(level)
	handler := clog.New(
		clog.WithWriter(w),
		clog.WithLevel(lv),
		clog.WithTimeFmt("15:04:05"),
		clog.WithSource(false),
		clog.WithAttrHook(clog.GoerrHook),
	)

	logger := slog.New(handler)
	if !ok {
		logger.Warn("invalid log level, using info", "level", level)
	}
	return logger
}

// Default is the logger used when a context carries none
func Default() *slog.Logger {
	fallbackMu.RLock()
	defer fallbackMu.RUnlock()
	return fallback
}

// SetDefault replaces the fallback logger for the whole process
func SetDefault(logger *slog.Logger) {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	fallback = logger
}

// With binds logger to ctx for everything the command calls
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}

// From returns the logger bound by With, falling back to Default
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// ExternalCallFailed logs a failed generation service call. call names the endpoint.
func ExternalCallFailed(ctx context.Context, call string, err error) {
	From(ctx).Error("external call failed", "call", call, "error", err)
}
