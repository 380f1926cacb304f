package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger envuelve zerolog para uso consistente en toda la aplicación.
type Logger struct {
	log zerolog.Logger
}

// New crea el logger: salida de consola legible en desarrollo, JSON en producción.
func New(env string) *Logger {
	var zl zerolog.Logger

	if env == "production" || env == "prod" {
		zl = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		zl = zerolog.New(output).With().Timestamp().Logger()
	}

	return &Logger{log: zl}
}

// With devuelve un logger hijo con un campo fijo adicional.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{log: l.log.With().Str(key, value).Logger()}
}

func (l *Logger) Trace() *zerolog.Event { return l.log.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.log.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.log.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.log.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.log.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.log.Fatal() }
