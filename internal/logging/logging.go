// Package logging builds the service's zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger for the given environment. Development gets a
// human-readable console writer; every other environment logs JSON.
func New(env, service string) zerolog.Logger {
	var w io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if env == "dev" || env == "" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		level = zerolog.DebugLevel
	}
	return NewWithWriter(w, service).Level(level)
}

// NewWithWriter writes JSON lines to w.
func NewWithWriter(w io.Writer, service string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", service).Logger()
}
