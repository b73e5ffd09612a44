// Package logging provides the leveled Logger interface consumed by every
// other package in this module, backed by logrus.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal leveled-logging surface every component depends on.
// It mirrors the shape of telegraf.Logger so call sites read the same way.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Level is the config-file numeric log level: 0=TRACE .. 4=ERROR.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var logrusLevels = [...]logrus.Level{
	LevelTrace: logrus.TraceLevel,
	LevelDebug: logrus.DebugLevel,
	LevelInfo:  logrus.InfoLevel,
	LevelWarn:  logrus.WarnLevel,
	LevelError: logrus.ErrorLevel,
}

// New builds a logrus-backed Logger. level is the config's 0..4 threshold;
// out of range values clamp to the nearest valid level. format selects
// "json" or defaults to logrus's text formatter.
func New(level int, format string, out io.Writer) Logger {
	if out == nil {
		out = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(out)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	switch {
	case level < int(LevelTrace):
		level = int(LevelTrace)
	case level > int(LevelError):
		level = int(LevelError)
	}
	l.SetLevel(logrusLevels[level])
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Discard is a Logger that drops every message; useful in tests.
var Discard Logger = discard{}

type discard struct{}

func (discard) Tracef(string, ...interface{}) {}
func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}
