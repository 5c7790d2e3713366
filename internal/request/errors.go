package request

import (
	"errors"
	"fmt"
)

// Error represents a classified request failure.
//
// Classifications:
//   - Network failure or timeout: the server was never reached, or never
//     answered. Retriable.
//   - Server error (5xx): the server answered but could not serve. Retriable.
//   - Client error (4xx): the request itself is wrong - a caller bug or
//     invalid input. Never retried; surfaced verbatim.
//
// Failures propagate as typed Outcomes carrying an *Error, never as raw
// panics, so the queue and the UI can pattern-match on the code.
type Error struct {
	// Code identifies the failure classification.
	Code Code

	// Message is a human-readable description.
	Message string

	// Status is the HTTP status code, 0 when no response was received.
	Status int
}

// Code categorizes request failures.
type Code string

const (
	// CodeNetwork indicates the server was unreachable or the attempt timed out.
	CodeNetwork Code = "NETWORK"

	// CodeServer indicates an HTTP 5xx response.
	CodeServer Code = "SERVER"

	// CodeClient indicates an HTTP 4xx response.
	CodeClient Code = "CLIENT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status=%d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retriable reports whether the same request may succeed if attempted
// again later. Client errors are terminal; everything else is retriable.
func (e *Error) Retriable() bool {
	return e.Code != CodeClient
}

// IsRetriable returns true if err is a retriable request failure.
// Uses errors.As to handle wrapped errors.
func IsRetriable(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Retriable()
	}
	return false
}

// IsClientError returns true if err is a terminal 4xx classification.
func IsClientError(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == CodeClient
	}
	return false
}

// IsNetworkError returns true if err is an unreachable/timeout classification.
func IsNetworkError(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == CodeNetwork
	}
	return false
}

// NewNetworkError creates an Error for a transport failure or timeout.
func NewNetworkError(message string) *Error {
	return &Error{Code: CodeNetwork, Message: message}
}

// NewServerError creates an Error for a 5xx response.
func NewServerError(status int, message string) *Error {
	return &Error{Code: CodeServer, Message: message, Status: status}
}

// NewClientError creates an Error for a 4xx response.
func NewClientError(status int, message string) *Error {
	return &Error{Code: CodeClient, Message: message, Status: status}
}
