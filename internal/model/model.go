// package model contains the request and response types shared by every
// transport. the root package re-exports them so callers never import
// internal packages.
package model

import (
	"context"

	"github.com/frankli0324/go-fetchstream/internal/headers"
)

// Credentials controls whether cookies are attached to a request.
type Credentials int

const (
	// CredentialsDefault leaves the decision to the transport. both
	// transports attach credentials to same-origin requests.
	CredentialsDefault Credentials = iota
	CredentialsInclude
	CredentialsOmit
)

func (c Credentials) String() string {
	switch c {
	case CredentialsInclude:
		return "include"
	case CredentialsOmit:
		return "omit"
	default:
		return "same-origin"
	}
}

// ParseCredentials maps the fetch credentials mode names.
func ParseCredentials(s string) Credentials {
	switch s {
	case "include":
		return CredentialsInclude
	case "omit":
		return CredentialsOmit
	default:
		return CredentialsDefault
	}
}

type Options struct {
	// Method defaults to GET.
	Method string
	// Body is one of string, []byte, *bytes.Buffer, *bytes.Reader,
	// *strings.Reader or io.Reader. It must be empty for GET and HEAD.
	Body    interface{}
	Headers *headers.Headers

	Credentials Credentials

	// Transport bypasses transport selection for this call.
	Transport Transport
}

// Body is a cancelable sequence of byte chunks.
//
// Next returns the next chunk, io.EOF once the body has been fully
// delivered, or the fault that ended delivery. Once Next returned an
// error it keeps returning the same error.
//
// Cancel stops production and tears down the underlying connection.
// Calling it more than once has no effect.
type Body interface {
	Next(ctx context.Context) ([]byte, error)
	Cancel() error
}

// Response is produced exactly once per request and never modified
// afterwards.
type Response struct {
	Body       Body
	Headers    *headers.Headers
	OK         bool
	Status     int
	StatusText string
	URL        string
}

// Transport issues one request and resolves once its response headers
// have arrived. The context is the request's cancellation token: it
// covers both the header phase and the body.
type Transport func(ctx context.Context, url string, opts *Options) (*Response, error)

type Middleware func(next Transport) Transport

// IsOK reports whether status is in the 2xx range.
func IsOK(status int) bool {
	return status >= 200 && status < 300
}
