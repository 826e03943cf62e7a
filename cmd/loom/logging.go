package main

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/casualjim/loom/internal/config"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// setupLogging routes slog through zerolog so library and CLI logs share one sink.
func setupLogging(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	var log zerolog.Logger
	if cfg.Format == "json" {
		log = zerolog.New(w).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
		log = zerolog.New(output).With().Timestamp().Logger()
	}

	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: parseLevel(cfg.Level)}),
	))
	return log
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
