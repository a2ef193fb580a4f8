package trafficlight

import (
	"context"
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)
var logger *slog.Logger

func init() {
	opts := slog.HandlerOptions{
		Level: logLevel,
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &opts))
	slog.SetDefault(logger)
}

// SetDebug switches the package logger to debug level.
func SetDebug(debug bool) {
	if debug {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
}

func newLoggerFromContext(ctx context.Context) *slog.Logger {
	if e := eventFromContext(ctx); e != nil {
		return logger.With("event_id", e.ID, "phase", e.Phase, "seq", e.Seq)
	}
	return logger
}
