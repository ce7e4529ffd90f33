package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/f2re/sale-photosession-bot/internal/config"
)

// SetupJSON sets slog's default logger to use JSON output at the given level.
func SetupJSON(level slog.Level) {
	slog.SetDefault(newJSON(os.Stdout, level))
}

// Setup is SetupJSON plus an optional rotated log file. The returned closer
// flushes and closes the file; it is a no-op when no file is configured.
func Setup(cfg config.LogConfig) io.Closer {
	if cfg.File == "" {
		SetupJSON(cfg.Level)

		return nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}

	slog.SetDefault(newJSON(io.MultiWriter(os.Stdout, file), cfg.Level))

	return file
}

func newJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(
		slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
	)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
