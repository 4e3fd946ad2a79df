package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Global logger instance; info until Init says otherwise
var log = zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// Init configures the global logger. Production logs are JSON on stdout;
// everything else uses the console writer.
func Init(level, environment string) {
	var output io.Writer = os.Stdout
	if environment != "production" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	log = zerolog.New(output).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// SetOutput redirects the global logger, mostly for tests
func SetOutput(w io.Writer) {
	log = log.Output(w)
}

// parseLevel falls back to info for empty or unknown levels
func parseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.TrimSpace(level))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// Get returns the global logger
func Get() zerolog.Logger {
	return log
}

// WithComponent returns a child logger tagged with a component name
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
