package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// New builds the application logger and installs it as the zerolog global.
func New(level string, pretty bool) zerolog.Logger {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	}

	logger := zerolog.New(w).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}

// ParseLevel falls back when the level name is unknown or empty.
func ParseLevel(level string, fallback zerolog.Level) zerolog.Level {
	if level == "" {
		return fallback
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fallback
	}
	return lvl
}

// Whatsmeow adapts a zerolog logger for whatsmeow clients and stores, which
// are chatty at debug so they get their own level.
func Whatsmeow(base zerolog.Logger, level string) waLog.Logger {
	return waLog.Zerolog(base.Level(ParseLevel(level, zerolog.WarnLevel)).With().Str("component", "whatsmeow").Logger())
}
