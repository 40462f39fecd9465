// Package dErrors defines the domain error vocabulary shared by services and
// transport. Services attach a Code and a human-readable reason; transport
// translates codes to HTTP statuses without inspecting reason strings.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable API; reasons are not.
type Code string

const (
	// CodeUnauthorized marks a role-gated action invoked by the wrong caller.
	CodeUnauthorized Code = "unauthorized"
	// CodeRegistryAccess marks a maturity-schedule mutation attempted without
	// the manager capability.
	CodeRegistryAccess Code = "registry_access_denied"
	// CodeInvalidState marks an action invoked outside its required lifecycle
	// state (proposing before funding, claiming before acceptance).
	CodeInvalidState Code = "invalid_state"
	// CodeAlreadyDone marks a repeat of a one-time action (re-initialize,
	// re-fund, re-claim, re-accept).
	CodeAlreadyDone Code = "already_done"
	// CodeTerminated marks any mutating call against a settled instance.
	CodeTerminated Code = "instance_terminated"
	// CodeValidation marks an amount out of range or not matching a required
	// exact value.
	CodeValidation Code = "validation"
	// CodeNotYetMatured marks a withdrawal attempted before maturity.
	CodeNotYetMatured Code = "not_yet_matured"
	// CodeExternalVenue marks a failed yield-venue call. The operation that
	// surfaced it performed no state change.
	CodeExternalVenue Code = "external_venue"

	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodePaused       Code = "paused"
	CodeInternal     Code = "internal"
)

// Error carries a code and reason through the call stack. Wrapped causes stay
// reachable via errors.Is/As.
type Error struct {
	Code   Code
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error from a code and reason.
func New(code Code, reason string) error {
	return &Error{Code: code, Reason: reason}
}

// Wrap attaches a code and reason to an underlying cause.
func Wrap(err error, code Code, reason string) error {
	return &Error{Code: code, Reason: reason, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			break
		}
	}
	return false
}

// CodeOf extracts the outermost domain code, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ReasonOf extracts the outermost human-readable reason, falling back to the
// raw error text.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return err.Error()
}
