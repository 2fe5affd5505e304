package legacy

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/frankli0324/go-fetchstream/internal/client"
	"github.com/frankli0324/go-fetchstream/internal/headers"
	"github.com/frankli0324/go-fetchstream/internal/model"
)

const readSize = 32 << 10

type Config struct {
	Client *client.Client // nil means a zero value client
	// Timeout bounds the whole exchange, body included. Zero disables it.
	Timeout time.Duration
	// ChunkedBinary enables the moz-chunked-arraybuffer response type.
	// Without it, setting that type fails.
	ChunkedBinary bool
}

// New returns a fresh request. It matches the factory signature expected
// by capability.Environment.
func (c *Config) New() Request {
	cl := c.Client
	if cl == nil {
		cl = &client.Client{}
	}
	return &XHR{cfg: *c, client: cl, respType: ResponseText}
}

type XHR struct {
	cfg    Config
	client *client.Client

	mu        sync.Mutex
	state     ReadyState
	method    string
	u         *url.URL
	respType  ResponseType
	withCreds bool
	header    *headers.Headers
	handlers  Handlers
	sent      bool
	aborted   bool
	cancel    context.CancelFunc

	status     int
	statusText string
	respURL    string
	rawHeader  string
	text       strings.Builder
	chunk      []byte
}

var _ Request = (*XHR)(nil)

func (x *XHR) Open(method, rawURL string) error {
	u, err := x.client.Resolve(rawURL)
	if err != nil {
		return model.NewError(model.ErrInvalidRequest, "open", rawURL, err)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.sent {
		return ErrInvalidState
	}
	x.method = model.NormalizeMethod(method)
	x.u = u
	x.header = headers.New()
	x.state = Opened
	return nil
}

func (x *XHR) SetResponseType(t ResponseType) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state >= Loading {
		return ErrInvalidState
	}
	switch t {
	case "", ResponseText:
		x.respType = ResponseText
	case ResponseChunkedArrayBuffer:
		if !x.cfg.ChunkedBinary {
			return ErrUnsupportedResponseType
		}
		x.respType = t
	}
	return nil
}

func (x *XHR) ResponseType() ResponseType {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.respType
}

func (x *XHR) SetWithCredentials(with bool) {
	x.mu.Lock()
	x.withCreds = with
	x.mu.Unlock()
}

func (x *XHR) SetRequestHeader(key, value string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state != Opened || x.sent {
		return ErrInvalidState
	}
	x.header.Append(key, value)
	return nil
}

func (x *XHR) SetHandlers(h Handlers) {
	x.mu.Lock()
	x.handlers = h
	x.mu.Unlock()
}

func (x *XHR) Send(body interface{}) error {
	x.mu.Lock()
	if x.state != Opened || x.sent {
		x.mu.Unlock()
		return ErrInvalidState
	}
	if x.method == "GET" || x.method == "HEAD" {
		body = nil
	}
	x.sent = true
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if x.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), x.cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	x.cancel = cancel
	req := &model.Request{Method: x.method, URL: x.u.String(), Body: body, Header: x.header}
	withCreds := x.withCreds
	x.mu.Unlock()

	go x.run(ctx, req, withCreds)
	return nil
}

func (x *XHR) Abort() {
	x.mu.Lock()
	if x.aborted {
		x.mu.Unlock()
		return
	}
	x.aborted = true
	inflight := x.sent && x.state != Done
	x.state = Unsent
	cancel, h := x.cancel, x.handlers.Abort
	x.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if inflight && h != nil {
		h()
	}
}

func (x *XHR) ReadyState() ReadyState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

func (x *XHR) Status() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.status
}

func (x *XHR) StatusText() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.statusText
}

func (x *XHR) ResponseURL() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.respURL
}

func (x *XHR) AllResponseHeaders() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.rawHeader
}

func (x *XHR) Response() Snapshot {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.respType == ResponseChunkedArrayBuffer {
		return Snapshot{Chunk: x.chunk}
	}
	return Snapshot{Text: x.text.String()}
}

// emit calls the handler picked by pick unless the request was aborted.
func (x *XHR) emit(pick func(Handlers) func()) {
	x.mu.Lock()
	if x.aborted {
		x.mu.Unlock()
		return
	}
	fn := pick(x.handlers)
	x.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// setState moves to st and notifies ReadyStateChange.
func (x *XHR) setState(st ReadyState) {
	x.mu.Lock()
	if x.aborted {
		x.mu.Unlock()
		return
	}
	x.state = st
	x.mu.Unlock()
	x.emit(func(h Handlers) func() { return h.ReadyStateChange })
}

func (x *XHR) run(ctx context.Context, req *model.Request, withCreds bool) {
	defer x.cancel()

	resp, err := x.client.Follow(ctx, req, func(u *url.URL) bool {
		return withCreds || x.client.SameOrigin(u)
	})
	if err != nil {
		x.fail(ctx, err)
		return
	}
	defer resp.Body.Close()

	x.mu.Lock()
	x.status = resp.StatusCode
	x.statusText = resp.StatusText
	x.respURL = resp.URL
	x.rawHeader = resp.Header.Format()
	binary := x.respType == ResponseChunkedArrayBuffer
	x.mu.Unlock()
	x.setState(HeadersReceived)

	var r io.Reader = resp.Body
	if !binary {
		r = decoder(resp.Header.Get("content-type"), r)
	}

	buf := make([]byte, readSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			x.mu.Lock()
			if binary {
				x.chunk = append([]byte(nil), buf[:n]...)
			} else {
				x.text.Write(buf[:n])
			}
			first := x.state == HeadersReceived
			x.mu.Unlock()
			if first {
				x.setState(Loading)
			}
			x.emit(func(h Handlers) func() { return h.Progress })
		}
		if err == io.EOF {
			x.setState(Done)
			x.emit(func(h Handlers) func() { return h.Load })
			return
		}
		if err != nil {
			x.fail(ctx, err)
			return
		}
	}
}

func (x *XHR) fail(ctx context.Context, err error) {
	x.setState(Done)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		x.emit(func(h Handlers) func() { return h.Timeout })
		return
	}
	x.emit(func(h Handlers) func() {
		if h.Error == nil {
			return nil
		}
		return func() { h.Error(err) }
	})
}

// decoder converts a text body to UTF-8. UTF-8 and unlabelled bodies are
// passed through untouched, so a multi-byte sequence cut by a read shows
// up incomplete at the end of the text.
func decoder(contentType string, r io.Reader) io.Reader {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r
	}
	label := strings.ToLower(strings.TrimSpace(params["charset"]))
	if label == "" || label == "utf-8" || label == "utf8" {
		return r
	}
	dr, err := charset.NewReaderLabel(label, r)
	if err != nil {
		return r
	}
	return dr
}
