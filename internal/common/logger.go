package common

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the active log file inside the configured log directory.
const LogFileName = "ibansync.log"

// NewLogger builds a logger writing to console and, when cfg.Dir is set, to a
// size-rotated file. The returned closer releases the file; it is never nil.
func NewLogger(cfg LogConfig, console io.Writer) (*slog.Logger, io.Closer) {
	var out io.Writer = console
	var closer io.Closer = nopCloser{}
	if cfg.Dir != "" {
		rotating := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, LogFileName),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = io.MultiWriter(console, rotating)
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return slog.New(h), closer
}

// ParseLevel maps a config level to slog; unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
