// Package apperr defines the error kinds surfaced by chat adapters and the identity provider.
package apperr

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies an Error.
type Kind string

const (
	// KindInvalidInput is bad caller usage, e.g. an empty or malformed conversation.
	KindInvalidInput Kind = "invalid_input"
	// KindUpstream is a non-2xx or malformed response from a remote endpoint.
	KindUpstream Kind = "upstream"
	// KindNetwork is a transport failure with no status code.
	KindNetwork Kind = "network"
	// KindAuthentication is an identity provider rejecting an operation.
	KindAuthentication Kind = "authentication"
)

// Error carries a Kind together with the user facing message.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int    // 0 for network and invalid input errors
	StatusText string // optional
	Hint       string // remediation text for network errors
	Cause      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindNetwork}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

func Upstream(statusCode int, statusText, message string) *Error {
	return &Error{
		Kind:       KindUpstream,
		Message:    message,
		StatusCode: statusCode,
		StatusText: statusText,
	}
}

// Network builds a transport failure. The hint doubles as the message because it is
// the only thing a user can act on.
func Network(hint string, cause error) *Error {
	return &Error{
		Kind:       KindNetwork,
		Message:    hint,
		StatusText: "Network Error",
		Hint:       hint,
		Cause:      cause,
	}
}

func Authentication(message string) *Error {
	if message == "" {
		message = "Authentication failed"
	}
	return &Error{Kind: KindAuthentication, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns a displayable message for any error value.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps err to the status an API handler should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	case KindNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
