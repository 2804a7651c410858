// SPDX-License-Identifier: BSD-3-Clause

package log

import (
	"log/slog"

	"github.com/rs/zerolog"
	slogmulti "github.com/samber/slog-multi"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

var global = NewDefaultLogger()

// NewDefaultLogger creates a new structured logger that writes to the console
// through zerolog. The logger uses zerolog for human-readable output with
// timestamps and debug level logging, fanned out through slog so every
// package in the tree can depend on log/slog alone.
func NewDefaultLogger() *slog.Logger {
	zeroLogger := zerolog.
		New(zerolog.NewConsoleWriter()).
		With().
		Timestamp().
		Logger()

	return slog.New(slogmulti.Fanout(
		slogzerolog.Option{Level: slog.LevelDebug, Logger: &zeroLogger}.NewZerologHandler(),
	))
}

// GetGlobalLogger returns the process-wide structured logger. It is
// initialized once at package load and shared by every component so log
// output stays consistently formatted regardless of who is logging.
func GetGlobalLogger() *slog.Logger {
	return global
}

// SetGlobalLogger replaces the process-wide logger. Tests use this to
// redirect log output to a buffer instead of the console.
func SetGlobalLogger(l *slog.Logger) {
	global = l
}
