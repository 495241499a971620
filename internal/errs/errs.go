// Package errs defines the Lightbus error taxonomy. Every error a public
// client operation can return is one of these kinds, wrapping an underlying
// cause where one exists.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a taxonomy entry from the design's error handling section.
type Kind string

const (
	KindConfiguration     Kind = "configuration_error"
	KindTransportFailure  Kind = "transport_failure"
	KindRpcTimeout        Kind = "rpc_timeout"
	KindNoResponders      Kind = "no_responders"
	KindValidationFailed  Kind = "validation_failed"
	KindNoSuchApi         Kind = "no_such_api"
	KindNoSuchMember      Kind = "no_such_member"
	KindRemoteError       Kind = "remote_error"
	KindDuplicateListener Kind = "duplicate_listener"
	KindSchemaConflict    Kind = "schema_conflict"
	KindLifecycleError    Kind = "lifecycle_error"
	KindCancelled         Kind = "cancelled"
)

// Error is the concrete type carried by every Lightbus-originated error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a Lightbus error of the given kind with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a Lightbus error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a Lightbus error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, ok=false if err isn't a Lightbus error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
