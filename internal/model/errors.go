package model

import (
	"context"
	"errors"
)

// Sentinel errors for each fault kind. Use errors.Is to branch on them.
var (
	// ErrInvalidRequest is a caller error, e.g. a body on a GET request.
	// It is reported before any network I/O.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNetwork covers connection failures and timeouts.
	ErrNetwork = errors.New("network request failed")

	// ErrAborted is returned when the caller's context is done or the body
	// was cancelled before it was fully delivered.
	ErrAborted = errors.New("request aborted")
)

// ErrGetWithBody is the cause of the [ErrInvalidRequest] returned for a
// GET or HEAD request carrying a body.
var ErrGetWithBody = errors.New("request with GET/HEAD method cannot have body")

// ErrBodyCancelled is the cause of the [ErrAborted] returned by a body
// after the consumer cancelled it.
var ErrBodyCancelled = errors.New("body cancelled")

type Error struct {
	Kind error // one of ErrInvalidRequest, ErrNetwork, ErrAborted
	Op   string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.URL != "" {
		s += " (" + e.URL + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause, so that errors.Is matches
// ErrAborted as well as context.Canceled on the same error.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewError(kind error, op, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

// AbortError builds the abort fault for a done context, carrying its
// cause.
func AbortError(ctx context.Context, op, url string) *Error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return NewError(ErrAborted, op, url, cause)
}

// IsAbort reports whether err is an abort fault.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted)
}
