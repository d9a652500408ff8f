package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level maps a level name (DEBUG, INFO, WARN, ERROR, FATAL, PANIC, DISABLED)
// to its zerolog level.
func Level(name string) (zerolog.Level, error) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "FATAL":
		return zerolog.FatalLevel, nil
	case "PANIC":
		return zerolog.PanicLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("incorrect log level %s", name)
	}
}

// InitLogger sets the global level and points the global logger at stderr.
// Stdout is left alone for the benchmark report.
func InitLogger(level string) {
	lvl, err := Level(level)
	if err != nil {
		log.Panic().Err(err).Msg("logger init failed")
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	log.Debug().Str("level", lvl.String()).Msg("logger initialized")
}
