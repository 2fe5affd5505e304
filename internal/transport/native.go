package transport

import (
	"context"

	"github.com/frankli0324/go-fetchstream/internal/client"
	"github.com/frankli0324/go-fetchstream/internal/model"
	"github.com/frankli0324/go-fetchstream/internal/stream"
)

// NativeClient performs fetch-like requests and returns responses whose
// body is read off the connection on demand.
type NativeClient interface {
	Fetch(ctx context.Context, url string, opts *model.Options) (*client.Response, error)
}

var _ NativeClient = (*client.Client)(nil)

// Native reshapes the responses of c. Cancellation is whatever c does
// with ctx and with a closed body.
func Native(c NativeClient) model.Transport {
	return func(ctx context.Context, url string, opts *model.Options) (*model.Response, error) {
		resp, err := c.Fetch(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		return &model.Response{
			Body:       stream.FromReader(resp.Body),
			Headers:    resp.Header,
			OK:         model.IsOK(resp.StatusCode),
			Status:     resp.StatusCode,
			StatusText: resp.StatusText,
			URL:        resp.URL,
		}, nil
	}
}
