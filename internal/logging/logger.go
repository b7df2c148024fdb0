package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type StructuredLogger interface {
	Trace(event string, data interface{})
	Debug(event string, data interface{})
	Info(event string, data interface{})
	Warn(event string, data interface{})
	Error(event string, data interface{})

	// With returns a logger that adds fields to every record.
	With(fields map[string]interface{}) StructuredLogger
}

type JSONLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewJSONLogger logs to stderr. Verbosity 0 only prints errors, 4 prints
// everything down to trace.
func NewJSONLogger(verbosity int) *JSONLogger {
	return NewJSONLoggerWithOutput(verbosity, os.Stderr)
}

func NewJSONLoggerWithOutput(verbosity int, out io.Writer) *JSONLogger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(levelFor(verbosity))

	return &JSONLogger{logger: logger, fields: logrus.Fields{}}
}

func levelFor(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.ErrorLevel
	case verbosity == 1:
		return logrus.WarnLevel
	case verbosity == 2:
		return logrus.InfoLevel
	case verbosity == 3:
		return logrus.DebugLevel
	}

	return logrus.TraceLevel
}

func (l *JSONLogger) With(fields map[string]interface{}) StructuredLogger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &JSONLogger{logger: l.logger, fields: merged}
}

func (l *JSONLogger) Trace(event string, data interface{}) {
	l.log(logrus.TraceLevel, event, data)
}

func (l *JSONLogger) Debug(event string, data interface{}) {
	l.log(logrus.DebugLevel, event, data)
}

func (l *JSONLogger) Info(event string, data interface{}) {
	l.log(logrus.InfoLevel, event, data)
}

func (l *JSONLogger) Warn(event string, data interface{}) {
	l.log(logrus.WarnLevel, event, data)
}

func (l *JSONLogger) Error(event string, data interface{}) {
	l.log(logrus.ErrorLevel, event, data)
}

func (l *JSONLogger) log(level logrus.Level, event string, data interface{}) {
	if !l.logger.IsLevelEnabled(level) {
		return
	}

	entry := l.logger.WithFields(l.fields)

	switch d := data.(type) {
	case nil:
	case map[string]interface{}:
		entry = entry.WithFields(logrus.Fields(d))
	case error:
		entry = entry.WithError(d)
	default:
		entry = entry.WithField("data", d)
	}

	entry.Log(level, event)
}
