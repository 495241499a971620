// Package telemetry wraps the standard library logger the way every
// long-lived Lightbus component expects to receive one: a *log.Logger field,
// defaulting to log.Default() when the caller doesn't supply one.
package telemetry

import (
	"log"
)

// NewLogger returns logger if non-nil, otherwise a default logger writing to
// stderr with the same flags the rest of the codebase uses.
func NewLogger(logger *log.Logger) *log.Logger {
	if logger != nil {
		return logger
	}
	return log.Default()
}
