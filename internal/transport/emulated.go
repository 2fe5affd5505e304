package transport

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/frankli0324/go-fetchstream/internal/headers"
	"github.com/frankli0324/go-fetchstream/internal/legacy"
	"github.com/frankli0324/go-fetchstream/internal/model"
	"github.com/frankli0324/go-fetchstream/internal/stream"
)

// Emulated streams responses of a legacy client by feeding its progress
// notifications through a [ChunkParser].
type Emulated struct {
	NewRequest   func() legacy.Request
	ResponseType legacy.ResponseType
	NewParser    func() ChunkParser
	// Origin makes relative request urls absolute in responses when the
	// legacy client does not report a response url.
	Origin *url.URL
	Logger *zap.Logger
}

func (e *Emulated) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Transport returns e.RoundTrip as a [model.Transport].
func (e *Emulated) Transport() model.Transport {
	return e.RoundTrip
}

func (e *Emulated) RoundTrip(ctx context.Context, rawURL string, opts *model.Options) (*model.Response, error) {
	if opts == nil {
		opts = &model.Options{}
	}
	method := model.NormalizeMethod(opts.Method)
	if err := model.CheckBody(method, opts.Body); err != nil {
		return nil, model.NewError(model.ErrInvalidRequest, "fetch", rawURL, err)
	}
	if ctx.Err() != nil {
		return nil, model.AbortError(ctx, "fetch", rawURL)
	}

	x := e.NewRequest()
	if err := x.Open(method, rawURL); err != nil {
		if errors.Is(err, model.ErrInvalidRequest) {
			return nil, err
		}
		return nil, model.NewError(model.ErrInvalidRequest, "open", rawURL, err)
	}
	if err := x.SetResponseType(e.ResponseType); err != nil {
		return nil, model.NewError(model.ErrNetwork, "open", rawURL, err)
	}
	x.SetWithCredentials(opts.Credentials != model.CredentialsOmit)
	var hdrErr error
	opts.Headers.Range(func(k, v string) bool {
		hdrErr = x.SetRequestHeader(k, v)
		return hdrErr == nil
	})
	if hdrErr != nil {
		return nil, model.NewError(model.ErrInvalidRequest, "open", rawURL, hdrErr)
	}

	rt := &roundTrip{
		x:       x,
		parser:  e.NewParser(),
		url:     rawURL,
		respURL: e.responseURL,
		log:     e.logger().With(zap.String("url", rawURL), zap.String("method", method)),
		settled: make(chan struct{}),
	}
	rt.body = stream.NewChunked(rt.cancelled)
	rt.stop = context.AfterFunc(ctx, func() { rt.aborted(ctx) })
	x.SetHandlers(legacy.Handlers{
		ReadyStateChange: rt.readyStateChange,
		Progress:         rt.progress,
		Load:             rt.load,
		Error:            rt.fail,
		Timeout:          func() { rt.fail(context.DeadlineExceeded) },
	})

	if err := x.Send(opts.Body); err != nil {
		rt.stop()
		return nil, model.NewError(model.ErrNetwork, "send", rawURL, err)
	}

	<-rt.settled
	return rt.resp, rt.err
}

// responseURL prefers the url reported by the legacy client, then the
// requested url made absolute against the origin.
func (e *Emulated) responseURL(x legacy.Request, requested string) string {
	if u := x.ResponseURL(); u != "" {
		return u
	}
	if e.Origin != nil {
		if u, err := url.Parse(requested); err == nil && !u.IsAbs() {
			return e.Origin.ResolveReference(u).String()
		}
	}
	return requested
}

// roundTrip is the state of one emulated request. Handlers run on the
// legacy client's goroutine, cancellation may come from the consumer or
// from the context at any time.
type roundTrip struct {
	x       legacy.Request
	parser  ChunkParser
	url     string
	respURL func(legacy.Request, string) string
	log     *zap.Logger

	body *stream.Chunked
	stop func() bool

	// set once the output must not see any more chunks
	done        atomic.Bool
	headersSeen bool

	once    sync.Once
	settled chan struct{}
	resp    *model.Response
	err     error
}

func (rt *roundTrip) settle(resp *model.Response, err error) {
	rt.once.Do(func() {
		rt.resp, rt.err = resp, err
		close(rt.settled)
	})
}

func (rt *roundTrip) readyStateChange() {
	if rt.done.Load() {
		return
	}
	switch rt.x.ReadyState() {
	case legacy.HeadersReceived, legacy.Loading:
		rt.headers()
	}
}

// headers resolves the pending response, once.
func (rt *roundTrip) headers() {
	if rt.headersSeen {
		return
	}
	rt.headersSeen = true
	status := rt.x.Status()
	rt.settle(&model.Response{
		Body:       rt.body,
		Headers:    headers.Parse(rt.x.AllResponseHeaders()),
		OK:         model.IsOK(status),
		Status:     status,
		StatusText: rt.x.StatusText(),
		URL:        rt.respURL(rt.x, rt.url),
	}, nil)
}

func (rt *roundTrip) progress() {
	if rt.done.Load() {
		return
	}
	rt.headers()
	rt.body.Enqueue(rt.parser.Parse(rt.x.Response()))
}

func (rt *roundTrip) load() {
	if rt.done.Swap(true) {
		return
	}
	rt.stop()
	rt.headers()
	rt.body.Enqueue(rt.parser.Flush())
	rt.body.Close()
}

func (rt *roundTrip) fail(err error) {
	if rt.done.Swap(true) {
		return
	}
	rt.stop()
	fault := model.NewError(model.ErrNetwork, "fetch", rt.url, err)
	rt.log.Debug("request failed", zap.Error(err), zap.Bool("headers_received", rt.headersSeen))
	rt.settle(nil, fault)
	rt.body.Error(fault)
}

// cancelled runs when the consumer cancels the body.
func (rt *roundTrip) cancelled() {
	if rt.done.Swap(true) {
		return
	}
	rt.stop()
	rt.log.Debug("body cancelled")
	rt.x.Abort()
}

// aborted runs when ctx is done before the request ended.
func (rt *roundTrip) aborted(ctx context.Context) {
	if rt.done.Swap(true) {
		return
	}
	fault := model.AbortError(ctx, "fetch", rt.url)
	rt.log.Debug("request aborted", zap.Error(fault.Err))
	rt.x.Abort()
	rt.body.Error(fault)
	rt.settle(nil, fault)
}
