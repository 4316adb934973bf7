package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can branch without string matching.
type Kind int

const (
	// KindAuthentication is an HTTP 401. It is never retried.
	KindAuthentication Kind = iota + 1
	// KindConnection is a transport failure with no retry policy behind it.
	KindConnection
	// KindProtocol is malformed inbound data on the WebSocket path.
	KindProtocol
	// KindRetryExhausted means the retry loop ran out of attempts.
	KindRetryExhausted
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindRetryExhausted:
		return "retry exhausted"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the HTTP executor and the WebSocket session.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They compare by Kind only.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrConnection     = &Error{Kind: KindConnection}
	ErrProtocol       = &Error{Kind: KindProtocol}
	ErrRetryExhausted = &Error{Kind: KindRetryExhausted}
)

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
// An exhausted retry loop is also a connection failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindConnection && e.Kind == KindRetryExhausted
}

func newAuthenticationError(code int, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

func newConnectionError(message string, err error) *Error {
	return &Error{Kind: KindConnection, Message: message, Err: err}
}

func newRetryExhaustedError(attempts int, err error) *Error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Kind:    KindRetryExhausted,
		Code:    http.StatusInternalServerError,
		Message: fmt.Sprintf("API request failed after %d attempt(s): %s", attempts, msg),
		Err:     err,
	}
}

func newProtocolError(raw []byte, err error) *Error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf("invalid JSON message: %s", raw), Err: err}
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsConnection reports whether err is a connection failure, including an
// exhausted retry loop.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsRetryExhausted reports whether err came from an exhausted retry loop.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// statusError is the cause recorded for a retryable HTTP status.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}
