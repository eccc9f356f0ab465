// Package apperr is the error taxonomy shared by the REST handlers and the
// live relay. Every error that leaves the process is rendered by Public.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pliu/murmur/internal/redact"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindForbidden
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind onto a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Msg is always a server-authored string;
// untrusted input is never copied into it.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Invalid reports a malformed, oversized or out-of-range field.
func Invalid(field, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Field: field, Msg: msg}
}

// NotFound reports that a referenced id does not resolve.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

// Forbidden is deliberately detail-free.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Msg: "forbidden"}
}

func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Msg: "too many requests"}
}

// Internal wraps an unexpected fault. The cause is kept for logging only.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Msg: "internal error", Err: err}
}

// KindOf returns the kind of err, treating unclassified errors as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Payload is the client-visible rendering of an error.
type Payload struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Public renders err for a client. Internal causes never appear in the
// payload and every string is passed through the redactor.
func Public(err error, r *redact.Redactor) Payload {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return Payload{Code: KindInternal.String(), Message: "internal error"}
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	return Payload{
		Code:    e.Kind.String(),
		Field:   r.String(e.Field),
		Message: r.String(msg),
	}
}
