// Package stdlogger adapts the global zerolog logger to printf style
// logger interfaces, e.g. gorm's logger.Writer.
package stdlogger

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger forwards printf style calls to zerolog.
type Logger struct {
	component string
	level     zerolog.Level
}

// New creates a Logger. Printf logs at printLevel, debug when omitted.
func New(component string, printLevel ...zerolog.Level) *Logger {
	l := &Logger{component: component, level: zerolog.DebugLevel}
	if len(printLevel) > 0 {
		l.level = printLevel[0]
	}

	return l
}

func (l *Logger) event(level zerolog.Level) *zerolog.Event {
	e := log.WithLevel(level)
	if l.component != "" {
		e = e.Str("component", l.component)
	}

	return e
}

// Printf implements gorm's logger.Writer.
func (l *Logger) Printf(format string, v ...any) {
	l.event(l.level).Msgf(format, v...)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, v ...any) {
	l.event(zerolog.DebugLevel).Msgf(format, v...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, v ...any) {
	l.event(zerolog.InfoLevel).Msgf(format, v...)
}

// Warningf logs at warn level.
func (l *Logger) Warningf(format string, v ...any) {
	l.event(zerolog.WarnLevel).Msgf(format, v...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, v ...any) {
	l.event(zerolog.ErrorLevel).Msgf(format, v...)
}
