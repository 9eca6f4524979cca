// Package log configures the process-wide slog default used by every binary.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler on stderr at the given level. Unknown levels
// fall back to info.
func Setup(logLevel string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns the default logger tagged with a module attribute.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
