package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a remote API failure.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindRateLimit Kind = "rate_limit"
	KindExpired   Kind = "expired"
	KindAuth      Kind = "auth"
	KindParsing   Kind = "parsing"
	KindServer    Kind = "server_error"
	KindUnknown   Kind = "unknown"
)

// Class describes how the sync engine reacts to a failed attempt.
type Class int

const (
	// ClassTransient failures are retried in-process with a graduated wait.
	ClassTransient Class = iota
	// ClassTerminal means the remote ended the session (membership expired).
	// Surfaced to the caller as a distinct result shape, not a generic error.
	ClassTerminal
	// ClassFatal failures abort the session and are surfaced verbatim.
	ClassFatal
)

// Remote error codes reported inside an otherwise well-formed payload.
const (
	CodeRateLimited       = 1059
	CodeMembershipExpired = 14210
	// CodeDeviceRestricted marks files the remote only serves to its
	// mobile clients. Not retryable from here.
	CodeDeviceRestricted = 1030
)

// Error is a typed remote API error.
type Error struct {
	Kind       Kind
	Code       int // remote payload error code, 0 if none
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("zsxq %s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("zsxq %s error (http %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("zsxq %s error: %s", e.Kind, e.Message)
}

// Class maps the error kind onto the retry policy's reaction.
func (e *Error) Class() Class {
	switch e.Kind {
	case KindExpired:
		return ClassTerminal
	case KindAuth:
		return ClassFatal
	default:
		// network, rate_limit, parsing, server_error, unknown
		return ClassTransient
	}
}

// FromRemoteCode builds an Error for a payload-level failure code.
func FromRemoteCode(code int, message string) *Error {
	kind := KindUnknown
	switch code {
	case CodeRateLimited:
		kind = KindRateLimit
	case CodeMembershipExpired:
		kind = KindExpired
	case CodeDeviceRestricted:
		kind = KindAuth
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

// FromHTTPStatus builds an Error for a non-200 HTTP response.
func FromHTTPStatus(status int, message string) *Error {
	var kind Kind
	switch status {
	case 429:
		kind = KindRateLimit
	case 401, 403:
		kind = KindAuth
	case 500, 502, 503, 504:
		kind = KindServer
	default:
		kind = KindUnknown
	}
	return &Error{Kind: kind, HTTPStatus: status, Message: message}
}

// Network wraps a transport-level failure (timeout, connection reset).
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error()}
}

// Parsing wraps an undecodable payload.
func Parsing(err error, httpStatus int) *Error {
	return &Error{Kind: KindParsing, HTTPStatus: httpStatus, Message: err.Error()}
}

// ClassOf classifies any error per the retry policy. Plain errors are
// treated as transient transport failures.
func ClassOf(err error) Class {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Class()
	}
	return ClassTransient
}

// IsExpired reports whether err is the membership-expired terminal state.
func IsExpired(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindExpired
}
