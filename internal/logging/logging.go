// Package logging builds the zerolog logger shared by the engine and CLI.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Writer returns a size-rotated log file at path, or fallback when path is
// empty. maxSizeMB and maxBackups of zero keep the lumberjack defaults.
func Writer(path string, maxSizeMB, maxBackups int, fallback io.Writer) io.Writer {
	if path == "" {
		return fallback
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
}

// New returns a logger writing to w at the given level. Format "json" emits
// one JSON object per line; "text" (or empty) uses a console writer.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(strings.ToLower(level)); err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
		}
	}

	var out io.Writer
	switch strings.ToLower(format) {
	case "json":
		out = w
	case "", "text":
		out = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want json or text", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
