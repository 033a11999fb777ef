// Package platform provides process-level plumbing shared by all entrypoints:
// logging, environment configuration, and request authorization.
package platform

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger builds the process logger. JSON output by default; human-readable
// console output when env is "development".
func InitLogger(env, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger.Level(lvl)
}
