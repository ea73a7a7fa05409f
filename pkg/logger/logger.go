package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// New builds the process-wide JSON logger. Local and dev environments log
// at debug; everything else at info. Every record carries the env attribute.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	switch appEnv {
	case "local", "dev":
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("env", appEnv)
}

// ShutdownFlush is a hook for draining buffered log sinks at shutdown.
// The JSON handler writes synchronously, so there is nothing to drain yet.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
