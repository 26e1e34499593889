// Package logging provides structured logging setup using log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents the logging verbosity level.
type Level int

const (
	// LevelInfo is the default logging level for normal operation.
	LevelInfo Level = iota
	// LevelDebug enables verbose debug output.
	LevelDebug
)

// Format selects the log line encoding.
type Format string

const (
	// FormatText is human-readable key=value output for terminals.
	FormatText Format = "text"
	// FormatJSON is one JSON object per line, for service managers and log shippers.
	FormatJSON Format = "json"
)

// Environment variables read by SetupFromEnv.
const (
	EnvDebug  = "N_VPN_DEBUG"
	EnvFormat = "N_VPN_LOG_FORMAT"
)

// Setup initializes the global slog logger writing to stderr.
// Call this once at application startup.
func Setup(level Level, format Format) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// New builds a logger writing to w.
func New(w io.Writer, level Level, format Format) *slog.Logger {
	slogLevel := slog.LevelInfo
	if level == LevelDebug {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// FromEnv reads the level and format from the environment.
// Set N_VPN_DEBUG=1 to enable debug logging and N_VPN_LOG_FORMAT=json for JSON output.
func FromEnv() (Level, Format) {
	level := LevelInfo
	if os.Getenv(EnvDebug) == "1" {
		level = LevelDebug
	}

	format := FormatText
	if strings.EqualFold(os.Getenv(EnvFormat), string(FormatJSON)) {
		format = FormatJSON
	}
	return level, format
}

// SetupFromEnv initializes the logger based on environment variables.
func SetupFromEnv() {
	Setup(FromEnv())
}
