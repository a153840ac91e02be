package logger

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	base         = newBase()
	currentLevel = INFO
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLogLevel sets the current log level
func SetLogLevel(level LogLevel) {
	currentLevel = level
	switch level {
	case DEBUG:
		base.SetLevel(logrus.DebugLevel)
	case WARN:
		base.SetLevel(logrus.WarnLevel)
	case ERROR:
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}
}

// SetLogLevelFromString sets log level from string
func SetLogLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		SetLogLevel(DEBUG)
	case "info":
		SetLogLevel(INFO)
	case "warn", "warning":
		SetLogLevel(WARN)
	case "error":
		SetLogLevel(ERROR)
	default:
		SetLogLevel(INFO)
	}
}

// Level returns the active level.
func Level() LogLevel {
	return currentLevel
}

// SetOutput redirects all log output, mostly useful in tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// WithModule returns an entry tagged with the component name.
func WithModule(name string) *logrus.Entry {
	return base.WithField("module", name)
}

// Debug logs debug messages
func Debug(format string, v ...interface{}) {
	base.Debugf(format, v...)
}

// Info logs info messages
func Info(format string, v ...interface{}) {
	base.Infof(format, v...)
}

// Warn logs warning messages
func Warn(format string, v ...interface{}) {
	base.Warnf(format, v...)
}

// Error logs error messages
func Error(format string, v ...interface{}) {
	base.Errorf(format, v...)
}

// Fatal logs fatal messages and exits
func Fatal(format string, v ...interface{}) {
	base.Fatalf(format, v...)
}
