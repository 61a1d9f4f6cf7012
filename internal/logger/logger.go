// Package logger builds the zerolog loggers used across arrview.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to w with timestamps.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// NewConsole returns a human-readable logger on stderr.
func NewConsole(level zerolog.Level) zerolog.Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, level)
}

// ParseLevel maps a level name to a zerolog level. Unknown names give info.
func ParseLevel(name string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "warning":
		return zerolog.WarnLevel
	case "":
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
