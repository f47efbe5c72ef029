// Package logging builds the zerolog loggers used by the command line tools.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables that override the logger setup.
const (
	EnvLogLevel   = "REMOTEPORT_LOG_LEVEL"
	EnvLogJSON    = "REMOTEPORT_LOG_JSON"
	EnvLogNoColor = "REMOTEPORT_LOG_NOCOLOR"
)

// Config describes a logger.
type Config struct {
	Level   zerolog.Level
	JSON    bool
	NoColor bool
	Out     io.Writer
}

// DefaultConfig logs info and above to stderr through a console writer.
func DefaultConfig() Config {
	return Config{
		Level: zerolog.InfoLevel,
		Out:   os.Stderr,
	}
}

// FromEnv applies the REMOTEPORT_LOG_* overrides on top of cfg.
func FromEnv(cfg Config) Config {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}

	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}

	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}

	return cfg
}

// New creates a logger for a component using the environment overrides.
func New(component string) zerolog.Logger {
	return NewWithConfig(component, FromEnv(DefaultConfig()))
}

// NewWithConfig creates a logger for a component.
func NewWithConfig(component string, cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	if !cfg.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
	}

	return zerolog.New(out).
		Level(cfg.Level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLevel reads a level name. The second result is false for empty or
// unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}

	return v, true
}
