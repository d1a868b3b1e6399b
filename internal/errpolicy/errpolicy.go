// Package errpolicy implements the failure contract shared by every pipeline
// stage: a failure is fatal, degraded-recoverable, or a warning, and the call
// site declares which. Fatal terminates the process; recoverable means the
// caller substitutes its own fallback and continues; warning only logs.
package errpolicy

import (
	"errors"
	"os"

	"hostwatch/internal/logger"
)

// Sentinel errors for argument and lookup failures in component APIs.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
)

// exitFunc is swapped out in tests.
var exitFunc = os.Exit

// Fatal logs an unrecoverable failure and terminates the process with a
// non-zero exit code. Reserved for startup failures: unsupported OS,
// scoring model unavailable.
func Fatal(component, message string, err error) {
	if err != nil {
		logger.Errorf("[%s] %s: %v", component, message, err)
	} else {
		logger.Errorf("[%s] %s", component, message)
	}
	logger.Errorf("[%s] terminating", component)
	exitFunc(1)
}

// Recoverable logs a per-cycle failure. The caller continues with its
// declared fallback value.
func Recoverable(component, message string, err error) {
	if err != nil {
		logger.Errorf("[%s] %s: %v", component, message, err)
	} else {
		logger.Errorf("[%s] %s", component, message)
	}
}

// Warn logs an informational failure. No fallback, no control-flow change.
func Warn(component, message string, err error) {
	if err != nil {
		logger.Warnf("[%s] %s: %v", component, message, err)
	} else {
		logger.Warnf("[%s] %s", component, message)
	}
}
