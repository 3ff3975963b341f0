// Package apperr defines the typed errors returned by the settlement,
// coupon and payout services. Every failure carries a Kind so that
// handlers can pick an HTTP status without string matching, and a
// message that is safe to show to the caller.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	// Internal is an unexpected failure. Its message is never shown to clients.
	Internal Kind = iota
	// InvalidArgument means the caller sent malformed input. Retrying will not help.
	InvalidArgument
	// NotFound means a referenced entity does not exist.
	NotFound
	// Conflict covers booking overlaps and duplicate resources.
	Conflict
	// InvalidState means the entity exists but cannot be used right now,
	// e.g. an unpublished listing or an exhausted coupon.
	InvalidState
	// Forbidden covers authorization failures, bad webhook signatures and
	// unsuccessful payments.
	Forbidden
	// GatewayFailure means an outbound call to the payment provider failed or timed out.
	GatewayFailure
)

var kindNames = map[Kind]string{
	Internal:        "internal",
	InvalidArgument: "invalid_argument",
	NotFound:        "not_found",
	Conflict:        "conflict",
	InvalidState:    "invalid_state",
	Forbidden:       "forbidden",
	GatewayFailure:  "gateway_failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "internal"
}

// HTTPStatus maps the kind onto the status code returned by handlers.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case InvalidState:
		return http.StatusUnprocessableEntity
	case Forbidden:
		return http.StatusForbidden
	case GatewayFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a user facing message and an
// optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap returns an error of the given kind that keeps err as its cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain. Unclassified
// errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the user facing message of err. Internal errors and
// unclassified errors collapse to "internal error".
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Msg
	}
	return "internal error"
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
