// Package logger wraps logrus behind the handful of helpers the tool
// actually uses.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Ctx is the logging context.
type Ctx logrus.Fields

// Log contains the logger used by all the logging functions.
var Log *logrus.Logger

// Setup a basic discarding logger on init.
func init() {
	log := logrus.StandardLogger()
	log.SetOutput(io.Discard)

	Log = log
}

// InitLogger configures the process-wide logger. Warnings and errors are
// always emitted; verbose adds info, debug adds everything.
func InitLogger(verbose bool, debug bool) {
	log := logrus.StandardLogger()
	log.SetOutput(os.Stderr)
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true, ForceColors: stderrIsTerminal()}

	if debug {
		log.Level = logrus.DebugLevel
	} else if verbose {
		log.Level = logrus.InfoLevel
	} else {
		log.Level = logrus.WarnLevel
	}

	Log = log
}

// Debug logs a message (with optional context) at the DEBUG log level.
func Debug(msg string, ctx ...Ctx) {
	Log.WithFields(fields(ctx)).Debug(msg)
}

// Info logs a message (with optional context) at the INFO log level.
func Info(msg string, ctx ...Ctx) {
	Log.WithFields(fields(ctx)).Info(msg)
}

// Warn logs a message (with optional context) at the WARNING log level.
func Warn(msg string, ctx ...Ctx) {
	Log.WithFields(fields(ctx)).Warn(msg)
}

// Error logs a message (with optional context) at the ERROR log level.
func Error(msg string, ctx ...Ctx) {
	Log.WithFields(fields(ctx)).Error(msg)
}

// Infof logs at the INFO log level using a standard printf format string.
func Infof(format string, args ...any) {
	Log.Info(fmt.Sprintf(format, args...))
}

// Debugf logs at the DEBUG log level using a standard printf format string.
func Debugf(format string, args ...any) {
	Log.Debug(fmt.Sprintf(format, args...))
}

func fields(ctx []Ctx) logrus.Fields {
	if len(ctx) == 0 {
		return nil
	}

	return logrus.Fields(ctx[0])
}
