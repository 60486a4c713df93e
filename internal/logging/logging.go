// Package logging constructs slog loggers from the numeric verbosity level
// used across TissueMAPS tooling.
package logging

import (
	"io"
	"log/slog"
)

// Level maps an additive verbosity count to a slog level.
//
//	0 → error, 1 → warn, 2 → info, 3 and above → debug
func Level(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelError
	case verbosity == 1:
		return slog.LevelWarn
	case verbosity == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// New creates a text logger writing to w at the given verbosity.
func New(w io.Writer, verbosity int) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: Level(verbosity),
	})
	return slog.New(handler)
}
