// Package logging builds the logrus logger shared by every strata command.
package logging

import (
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"
)

// New returns a text logger writing to w at the given verbosity.
//
// The verbosity is either a logrus level name ("debug", "info", "warning",
// ...) or a number, where 0 is panic and 6 is trace, matching logrus.Level.
func New(w io.Writer, verbosity string) (*logrus.Logger, error) {
	level, err := ParseVerbosity(verbosity)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: level < logrus.DebugLevel,
		FullTimestamp:    true,
	})
	return logger, nil
}

// ParseVerbosity converts a level name or number into a logrus.Level.
func ParseVerbosity(verbosity string) (logrus.Level, error) {
	if n, err := strconv.Atoi(verbosity); err == nil {
		if n < int(logrus.PanicLevel) || n > int(logrus.TraceLevel) {
			return 0, fmt.Errorf("invalid verbosity %d: must be between %d and %d", n, logrus.PanicLevel, logrus.TraceLevel)
		}
		return logrus.Level(n), nil
	}

	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return 0, fmt.Errorf("invalid verbosity %q: %w", verbosity, err)
	}
	return level, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
