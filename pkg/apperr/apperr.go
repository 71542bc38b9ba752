// Package apperr provides the error taxonomy shared by the authorization engine
// and its callers. Engine operations return *Error values; the HTTP layer maps
// each Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindUnauthenticated means no acting identity could be resolved.
	KindUnauthenticated
	// KindInsufficientPermission means the actor's role or level is below the requirement.
	KindInsufficientPermission
	// KindForbidden means the operation is never allowed in this shape,
	// e.g. removing an owner or removing oneself.
	KindForbidden
	// KindInvariantViolation means the operation would break a tenant invariant,
	// e.g. leaving a tenant without an owner.
	KindInvariantViolation
	// KindNotFound indicates a tenant, membership or identity does not exist.
	KindNotFound
	// KindConflict indicates a uniqueness clash or concurrent modification.
	KindConflict
	// KindUpstreamFailure indicates the identity provider or store failed.
	KindUpstreamFailure
	// KindValidation indicates malformed input.
	KindValidation
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindUnauthenticated:        "unauthenticated",
	KindInsufficientPermission: "insufficient_permission",
	KindForbidden:              "forbidden",
	KindInvariantViolation:     "invariant_violation",
	KindNotFound:               "not_found",
	KindConflict:               "conflict",
	KindUpstreamFailure:        "upstream_failure",
	KindValidation:             "validation",
	KindInternal:               "internal",
}

// String returns the snake_case name used in logs, metrics and response bodies.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a domain error with a typed Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	return StatusOf(e.Kind)
}

// StatusOf maps a kind to its HTTP status code.
func StatusOf(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInsufficientPermission, KindForbidden:
		return http.StatusForbidden
	case KindInvariantViolation, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithOp sets the operation name and returns the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new domain error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Convenience constructors.

func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, message)
}

func InsufficientPermission(message string) *Error {
	return New(KindInsufficientPermission, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

func InvariantViolation(message string) *Error {
	return New(KindInvariantViolation, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

func Upstream(message string, err error) *Error {
	return Wrap(KindUpstreamFailure, message, err)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// KindOf extracts the error kind from anywhere in an error chain.
// Returns KindUnknown if no *Error is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
