// Package fetchstream issues HTTP requests whose response bodies are
// consumed as a stream of chunks while they arrive.
//
// The transport is picked once per [Client] from what its [Environment]
// offers: a native client whose bodies stream, a legacy client reporting
// progress with only the new bytes, or a legacy client exposing a growing
// text buffer. Callers see the same [Response] in every case.
package fetchstream

import (
	"context"
	"io"

	"github.com/frankli0324/go-fetchstream/internal/headers"
	"github.com/frankli0324/go-fetchstream/internal/model"
	"github.com/frankli0324/go-fetchstream/internal/stream"
)

type Options = model.Options
type Response = model.Response
type Body = model.Body
type Transport = model.Transport
type Middleware = model.Middleware

type Headers = headers.Headers
type Field = headers.Field

// NewHeaders builds a header container from fields, in order.
func NewHeaders(fields ...Field) *Headers { return headers.From(fields...) }

// ParseHeaders reads a CRLF delimited "name: value" header block.
func ParseHeaders(raw string) *Headers { return headers.Parse(raw) }

type Credentials = model.Credentials

const (
	CredentialsDefault = model.CredentialsDefault
	CredentialsInclude = model.CredentialsInclude
	CredentialsOmit    = model.CredentialsOmit
)

type Error = model.Error

var (
	ErrInvalidRequest = model.ErrInvalidRequest
	ErrNetwork        = model.ErrNetwork
	ErrAborted        = model.ErrAborted
	ErrGetWithBody    = model.ErrGetWithBody
	ErrBodyCancelled  = model.ErrBodyCancelled
)

// NewReader adapts body to [io.ReadCloser]. Each Read returns bytes of at
// most one chunk; Close cancels the body.
func NewReader(ctx context.Context, body Body) io.ReadCloser { return stream.NewReader(ctx, body) }

// ReadAll drains body and returns its chunks in delivery order.
func ReadAll(ctx context.Context, body Body) ([][]byte, error) { return stream.ReadAll(ctx, body) }
