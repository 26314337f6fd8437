// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"locker/internal/config"
)

// New returns a charmbracelet logger writing to w at the configured level
// and format. An unknown level falls back to info.
func New(w io.Writer, cfg config.LoggingConfig) *log.Logger {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}

	formatter := log.TextFormatter
	switch strings.ToLower(cfg.Format) {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    level == log.DebugLevel,
	})
}

// Setup installs the logger built by New as the slog default.
func Setup(w io.Writer, cfg config.LoggingConfig) *log.Logger {
	logger := New(w, cfg)
	slog.SetDefault(slog.New(logger))
	return logger
}
