// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Err tags an error attribute so console output highlights it.
var Err = tint.Err //nolint:gochecknoglobals

type Options struct {
	Level  string // debug|info|warn|error
	Format string // json|text|console
	File   string // rotate into this file instead of stdout when set
}

// New returns a logger and a closer for its output.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.WriteCloser = nopCloser{os.Stdout}
	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  100, // megabytes
			MaxAge:   28,  // days
			Compress: true,
		}
	}

	h, err := newHandler(out, opts.Format, level)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(h), out, nil
}

func newHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "console":
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// ParseLevel maps a level name onto slog. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
