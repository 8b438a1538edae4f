// Package logging builds the zerolog logger shared by stagehand's
// components.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dshills/stagehand/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger from cfg writing to stderr, and to a rotated file
// when cfg.File is set. The returned closer releases the file.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with console output sent to w.
func NewWithWriter(cfg config.LogConfig, w io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	writers := []io.Writer{consoleWriter(cfg.Format, w)}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		writers = append(writers, file)
		closer = file
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

func consoleWriter(format string, w io.Writer) io.Writer {
	if strings.EqualFold(format, "json") {
		return w
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
}

// parseLevel accepts zerolog level names; "" means info.
func parseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", name, err)
	}
	return level, nil
}
