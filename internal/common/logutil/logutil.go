// Package logutil builds the process logger from the logging settings.
package logutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"scoutd/internal/config"
)

// New returns a logger configured per cfg: JSON output by default, a
// console writer when format is "text", level falling back to info on
// anything unrecognized.
func New(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "text") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
