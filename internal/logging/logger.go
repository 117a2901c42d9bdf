// Package logging is relay's ambient structured-logging layer, wrapping
// github.com/sirupsen/logrus behind a small level/field interface.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger relay's internals accept. Methods take a
// message followed by alternating key/value pairs, mirroring logrus's
// WithFields usage without forcing every caller to build a map.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	WithField(key string, value interface{}) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New creates a logger at the given level ("debug", "info", "warn",
// "error") and format ("json" or "text").
func New(level, format string) Logger {
	l := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.WarnLevel
	}
	l.SetLevel(parsed)
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}
	l.SetOutput(os.Stderr)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// Nop returns a Logger that discards everything, used as the default when
// a caller does not supply one.
func Nop() Logger {
	l := logrus.New()
	l.SetOutput(nilWriter{})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l *logrusLogger) Debug(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Debug(msg) }
func (l *logrusLogger) Info(msg string, kv ...interface{})  { l.entry.WithFields(fields(kv)).Info(msg) }
func (l *logrusLogger) Warn(msg string, kv ...interface{})  { l.entry.WithFields(fields(kv)).Warn(msg) }
func (l *logrusLogger) Error(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Error(msg) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}
