package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a backend failure.
type Kind string

const (
	// KindNetwork covers transport failures: refused connections, DNS
	// errors, dropped streams.
	KindNetwork Kind = "network"

	// KindPermission covers authentication and authorization failures.
	KindPermission Kind = "permission"

	// KindNotFound means the addressed entity does not exist.
	KindNotFound Kind = "not_found"

	// KindValidation means the request was malformed or violated an
	// input rule.
	KindValidation Kind = "validation"

	// KindTimeout means the command did not complete in time.
	KindTimeout Kind = "timeout"

	// KindUnknown is the fallback for unclassified failures.
	KindUnknown Kind = "unknown"
)

// Severity is the weight a failure carries when shown to the user.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Severity returns the severity for the kind.
func (k Kind) Severity() Severity {
	switch k {
	case KindTimeout, KindNotFound, KindValidation:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Retryable reports whether retrying the same command can succeed
// without the user changing anything.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is a classified backend failure. Action carries the user-facing
// name of what was attempted; Err carries the technical cause, which is
// logged but never shown to the user.
type Error struct {
	Kind   Kind
	Action string
	Err    error
}

// New creates a classified error.
func New(kind Kind, action string, err error) *Error {
	return &Error{Kind: kind, Action: action, Err: err}
}

// Wrap classifies err with KindOf and attaches the action name.
func Wrap(action string, err error) *Error {
	return &Error{Kind: KindOf(err), Action: action, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Action, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Action, e.Kind, e.Err)
}

// Unwrap returns the technical cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the text shown to the user, naming the failed
// action but never the technical cause.
func (e *Error) UserMessage() string {
	if e.Action == "" {
		return "Operation failed"
	}
	return "Failed to " + e.Action
}

// Severity returns the severity of the failure.
func (e *Error) Severity() Severity {
	return e.Kind.Severity()
}

// Retryable reports whether the command is worth retrying as-is.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf classifies an arbitrary error. Already-classified errors keep
// their kind; context deadlines and net timeouts map to KindTimeout,
// other net errors to KindNetwork, everything else to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	return KindUnknown
}
