// Package definition holds the default, swappable implementations of
// the types package's interfaces: Logger, Bitmap/ActivityLog/
// MetadataStore (in-memory stand-ins for the real external
// collaborators), HashVerifier, and the prometheus metric registry.
// Mirrors the teacher's pkg/mcast/definition package, which plays the
// same role for DefaultLogger.
package definition

import (
	"fmt"
	"log"
	"os"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/sirupsen/logrus"
)

const calldepth = 2

const (
	lvlInfo  = "INFO"
	lvlWarn  = "WARN"
	lvlError = "ERROR"
	lvlDebug = "DEBUG"
	lvlFatal = "FATAL"
)

func level(prefix, message string) string {
	return fmt.Sprintf("[%s]: %s", prefix, message)
}

// DefaultLogger wraps the standard log.Logger, same as the teacher's
// definition.DefaultLogger. Used when no structured-logging backend is
// configured.
type DefaultLogger struct {
	*log.Logger
	debug  bool
	prefix string
}

func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		Logger: log.New(os.Stderr, "drbd ", log.LstdFlags),
		debug:  false,
	}
}

func (l *DefaultLogger) line(message string) string {
	if l.prefix == "" {
		return message
	}
	return l.prefix + " " + message
}

func (l *DefaultLogger) Info(v ...interface{}) {
	l.Output(calldepth, level(lvlInfo, l.line(fmt.Sprint(v...))))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.Output(calldepth, level(lvlInfo, l.line(fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Warn(v ...interface{}) {
	l.Output(calldepth, level(lvlWarn, l.line(fmt.Sprint(v...))))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.Output(calldepth, level(lvlWarn, l.line(fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Error(v ...interface{}) {
	l.Output(calldepth, level(lvlError, l.line(fmt.Sprint(v...))))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.Output(calldepth, level(lvlError, l.line(fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level(lvlDebug, l.line(fmt.Sprint(v...))))
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level(lvlDebug, l.line(fmt.Sprintf(format, v...))))
	}
}

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	l.debug = value
	return l.debug
}

func (l *DefaultLogger) Fatal(v ...interface{}) {
	l.Output(calldepth, level(lvlFatal, l.line(fmt.Sprint(v...))))
	os.Exit(1)
}

func (l *DefaultLogger) Fatalf(format string, v ...interface{}) {
	l.Output(calldepth, level(lvlFatal, l.line(fmt.Sprintf(format, v...))))
	os.Exit(1)
}

func (l *DefaultLogger) Panic(v ...interface{}) {
	l.Logger.Panic(v...)
}

func (l *DefaultLogger) Panicf(format string, v ...interface{}) {
	l.Logger.Panicf(format, v...)
}

func (l *DefaultLogger) WithFields(fields map[string]interface{}) types.Logger {
	suffix := ""
	for k, v := range fields {
		suffix += fmt.Sprintf(" %s=%v", k, v)
	}
	clone := &DefaultLogger{Logger: l.Logger, debug: l.debug, prefix: l.prefix + suffix}
	return clone
}

// LogrusLogger adapts github.com/sirupsen/logrus to types.Logger. The
// teacher's go.mod already lists logrus (indirect, pulled in by relt);
// promoted here to a direct dependency so connection/epoch/peer-device
// context (connection id, peer address, epoch number) travels as real
// structured fields instead of being folded into the message text.
type LogrusLogger struct {
	entry *logrus.Entry
}

func NewLogrusLogger() *LogrusLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Info(v ...interface{})                  { l.entry.Info(v...) }
func (l *LogrusLogger) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *LogrusLogger) Warn(v ...interface{})                  { l.entry.Warn(v...) }
func (l *LogrusLogger) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *LogrusLogger) Error(v ...interface{})                 { l.entry.Error(v...) }
func (l *LogrusLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }
func (l *LogrusLogger) Debug(v ...interface{})                 { l.entry.Debug(v...) }
func (l *LogrusLogger) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *LogrusLogger) Fatal(v ...interface{})                 { l.entry.Fatal(v...) }
func (l *LogrusLogger) Fatalf(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }
func (l *LogrusLogger) Panic(v ...interface{})                 { l.entry.Panic(v...) }
func (l *LogrusLogger) Panicf(format string, v ...interface{}) { l.entry.Panicf(format, v...) }

func (l *LogrusLogger) ToggleDebug(value bool) bool {
	if value {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return value
}

func (l *LogrusLogger) WithFields(fields map[string]interface{}) types.Logger {
	return &LogrusLogger{entry: l.entry.WithFields(fields)}
}
