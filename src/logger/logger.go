package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"orderbook/src/config"
)

var Logger zerolog.Logger
var logFile *os.File

// Init configures the global zerolog logger. Output always goes to stdout
// and additionally to cfg.File unless it is empty, "none" or "disabled".
func Init(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	CloseLogger()
	if cfg.File != "" && cfg.File != "none" && cfg.File != "disabled" {
		logFile, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Error().Err(err).Str("log_file", cfg.File).Msg("Failed to open log file, using stdout only")
			logFile = nil
		}
	}

	var console io.Writer = os.Stdout
	if cfg.Format == "pretty" {
		console = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	Logger = New(console, logFile)
	log.Logger = Logger

	event := Logger.Info().Str("log_level", level.String())
	if logFile != nil {
		event.Str("log_file", cfg.File).Msg("Logger initialized - writing to console and file")
	} else {
		event.Msg("Logger initialized - writing to console only")
	}
}

// New builds a timestamped logger over the given writers; nil writers are skipped.
func New(writers ...io.Writer) zerolog.Logger {
	out := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w == nil {
			continue
		}
		if f, ok := w.(*os.File); ok && f == nil {
			continue
		}
		out = append(out, w)
	}
	return zerolog.New(io.MultiWriter(out...)).With().
		Timestamp().
		Logger()
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}

func GetLogger() zerolog.Logger {
	return Logger
}
