package slog

import (
	"context"
	"log/slog"
	"os"
)

// Replaced in tests
var exitFn = os.Exit

// FatalError logs an error with the given message and terminates the process with exit code 1.
// If log is nil, uses the default logger.
func FatalError(log *slog.Logger, msg string, err error) {
	if log == nil {
		log = slog.Default()
	}
	log.LogAttrs(context.Background(), slog.LevelError, msg, slog.Any("error", err))
	exitFn(1)
}
