// Package logging wires zerolog for the service and the batch CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	root zerolog.Logger
)

// Init sets up the process logger. format is "json" or "console"; level is
// a zerolog level name, defaulting to info. Safe to call more than once.
func Init(level, format string) {
	once.Do(func() {
		var out io.Writer = os.Stderr
		if format == "console" {
			out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
		lv := parseLevel(level)
		root = zerolog.New(out).Level(lv).With().Timestamp().Logger()
	})
}

// L returns the process logger, initializing from LOG_LEVEL / LOG_FORMAT
// if Init was never called.
func L() *zerolog.Logger {
	Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	return &root
}

// With returns a child logger tagged with a component name.
func With(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
