// package client is the natively streaming HTTP client: every response
// body is read straight off the connection as the caller consumes it.
//
// connections are never reused. each request dials, and closing the
// body (or cancelling the request's context) closes the connection.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http2"

	"github.com/frankli0324/go-fetchstream/internal/dialer"
	"github.com/frankli0324/go-fetchstream/internal/headers"
	"github.com/frankli0324/go-fetchstream/internal/model"
	"github.com/frankli0324/go-fetchstream/internal/wire"
)

const defaultMaxRedirects = 20

type Client struct {
	Dialer dialer.Dialer // nil means [dialer.Default]
	Jar    http.CookieJar
	// Origin resolves relative URLs and decides which requests are
	// same-origin for the default credentials mode.
	Origin *url.URL
	// MaxRedirects defaults to 20, negative values disable following.
	MaxRedirects int
	// DisableStreaming buffers the whole body before a response is
	// returned, like a host whose responses carry no readable stream.
	DisableStreaming bool
}

type Response struct {
	URL        string
	Proto      string
	StatusCode int
	StatusText string
	Header     *headers.Headers
	Body       io.ReadCloser
	Redirected bool
}

// StreamingBody reports whether response bodies are delivered
// incrementally.
func (c *Client) StreamingBody() bool {
	return !c.DisableStreaming
}

// UseDialer replaces the dialer with the one returned by f, which
// receives the current dialer so it can wrap it.
func (c *Client) UseDialer(f func(dialer.Dialer) dialer.Dialer) {
	c.Dialer = f(c.dialer())
}

// DisableH2 stops offering h2 in the TLS handshake, so that https
// requests go over HTTP/1.1 too. It reports whether h2 was offered.
func (c *Client) DisableH2() (ok bool) {
	c.UseDialer(func(d dialer.Dialer) dialer.Dialer {
		cd := dialer.Core(d)
		if cd == nil || cd.TLSConfig == nil {
			return d
		}
		tc := cd.TLSConfig.Clone()
		tc.NextProtos = nil
		for _, p := range cd.TLSConfig.NextProtos {
			if p == "h2" {
				ok = true
				continue
			}
			tc.NextProtos = append(tc.NextProtos, p)
		}
		cd.TLSConfig = tc
		return d
	})
	return
}

func (c *Client) dialer() dialer.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return dialer.Default()
}

func (c *Client) maxRedirects() int {
	if c.MaxRedirects == 0 {
		return defaultMaxRedirects
	}
	return c.MaxRedirects
}

// Resolve parses raw, resolving it against [Client.Origin] when relative.
func (c *Client) Resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		return u, nil
	}
	if c.Origin == nil {
		return nil, fmt.Errorf("relative url %q without an origin", raw)
	}
	return c.Origin.ResolveReference(u), nil
}

func (c *Client) SameOrigin(u *url.URL) bool {
	return c.Origin != nil &&
		strings.EqualFold(c.Origin.Scheme, u.Scheme) &&
		strings.EqualFold(c.Origin.Host, u.Host)
}

// Fetch performs a request with fetch semantics: redirects are followed
// and cookies are attached according to opts.Credentials. Errors are
// *[model.Error] values of kind ErrInvalidRequest, ErrNetwork or
// ErrAborted.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts *model.Options) (*Response, error) {
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
	u, err := c.Resolve(rawURL)
	if err != nil {
		return nil, model.NewError(model.ErrInvalidRequest, "fetch", rawURL, err)
	}
	creds := func(u *url.URL) bool {
		switch opts.Credentials {
		case model.CredentialsOmit:
			return false
		case model.CredentialsInclude:
			return true
		}
		return c.SameOrigin(u)
	}
	resp, err := c.Follow(ctx, &model.Request{
		Method: method, URL: u.String(),
		Body: opts.Body, Header: opts.Headers,
	}, creds)
	if err != nil {
		if model.IsAbort(err) {
			return nil, err
		}
		return nil, model.NewError(model.ErrNetwork, "fetch", u.String(), err)
	}
	return resp, nil
}

func isRedirect(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// Follow performs req, following redirects. credentials decides per hop
// whether cookies are attached and stored.
func (c *Client) Follow(ctx context.Context, req *model.Request, credentials func(*url.URL) bool) (*Response, error) {
	max := c.maxRedirects()
	redirected := false
	for hop := 0; ; hop++ {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, err
		}
		resp, err := c.Do(ctx, req, credentials(u))
		if err != nil {
			return nil, err
		}
		resp.Redirected = redirected
		loc := resp.Header.Get("location")
		if max < 0 || !isRedirect(resp.StatusCode) || loc == "" {
			return resp, nil
		}
		resp.Body.Close()
		if hop >= max {
			return nil, fmt.Errorf("stopped after %d redirects", max)
		}
		next, err := u.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("bad redirect location %q: %w", loc, err)
		}

		method, body := req.Method, req.Body
		hdr := req.Header
		if (resp.StatusCode == 303 && method != "HEAD") ||
			((resp.StatusCode == 301 || resp.StatusCode == 302) && method == "POST") {
			method, body = "GET", nil
			hdr = hdr.Clone()
			hdr.Del("content-type")
		} else if !model.ReplayableBody(body) {
			return nil, errors.New("cannot follow redirect with a non-replayable body")
		}
		req = &model.Request{Method: method, URL: next.String(), Body: body, Header: hdr}
		redirected = true
	}
}

// Do performs exactly one exchange. When cookies is set, cookies from
// [Client.Jar] are attached and Set-Cookie headers are stored back.
func (c *Client) Do(ctx context.Context, req *model.Request, cookies bool) (*Response, error) {
	pr, err := req.Prepare()
	if err != nil {
		return nil, err
	}
	if cookies && c.Jar != nil {
		if cks := c.Jar.Cookies(pr.U); len(cks) > 0 {
			parts := make([]string, 0, len(cks))
			for _, ck := range cks {
				parts = append(parts, ck.Name+"="+ck.Value)
			}
			pr.Header.Append("cookie", strings.Join(parts, "; "))
		}
	}

	conn, err := c.dialer().Dial(ctx, pr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.AbortError(ctx, "dial", req.URL)
		}
		return nil, err
	}
	// cancellation of ctx at any point tears the connection down
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	var resp *Response
	if dialer.IsH2(conn) {
		resp, err = roundTripH2(ctx, conn, pr)
	} else {
		resp, err = roundTripH1(conn, pr)
	}
	if err != nil {
		stop()
		conn.Close()
		if ctx.Err() != nil {
			return nil, model.AbortError(ctx, "roundtrip", req.URL)
		}
		return nil, err
	}
	resp.URL = pr.U.String()
	if cookies && c.Jar != nil {
		if cks := (&http.Response{Header: resp.Header.HTTP()}).Cookies(); len(cks) > 0 {
			c.Jar.SetCookies(pr.U, cks)
		}
	}
	resp.Body = &ctxBody{ReadCloser: resp.Body, ctx: ctx, stop: stop, url: resp.URL}

	if c.DisableStreaming {
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(data))
	}
	return resp, nil
}

func roundTripH1(conn net.Conn, pr *model.PreparedRequest) (*Response, error) {
	if err := wire.Write(conn, pr); err != nil {
		return nil, err
	}
	wr := &wire.Response{}
	if err := wire.Read(conn, pr.Method, wr); err != nil {
		return nil, err
	}
	return &Response{
		Proto:      wr.Proto,
		StatusCode: wr.StatusCode,
		StatusText: wr.StatusText,
		Header:     wr.Header,
		Body:       wr.Body,
	}, nil
}

type h2Body struct {
	io.ReadCloser
	cc *http2.ClientConn
}

func (b h2Body) Close() error {
	err := b.ReadCloser.Close()
	b.cc.Close()
	return err
}

func roundTripH2(ctx context.Context, conn net.Conn, pr *model.PreparedRequest) (*Response, error) {
	cc, err := (&http2.Transport{}).NewClientConn(conn)
	if err != nil {
		return nil, err
	}
	body, err := pr.GetBody()
	if err != nil {
		cc.Close()
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, pr.Method, pr.U.String(), body)
	if err != nil {
		cc.Close()
		return nil, err
	}
	hreq.Host = pr.HeaderHost
	hreq.Header = pr.Header.HTTP()
	if body != http.NoBody {
		hreq.ContentLength = pr.ContentLength
	}
	resp, err := cc.RoundTrip(hreq)
	if err != nil {
		cc.Close()
		return nil, err
	}
	return &Response{
		Proto:      resp.Proto,
		StatusCode: resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Header:     headers.FromHTTP(resp.Header),
		Body:       h2Body{resp.Body, cc},
	}, nil
}

// ctxBody reports read failures caused by the request's context as
// abort faults instead of "use of closed network connection". Any other
// read failure is a network fault.
type ctxBody struct {
	io.ReadCloser
	ctx  context.Context
	stop func() bool
	url  string
}

func (b *ctxBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	var fault *model.Error
	switch {
	case b.ctx.Err() != nil:
		err = model.AbortError(b.ctx, "read", b.url)
	case !errors.As(err, &fault):
		err = model.NewError(model.ErrNetwork, "read", b.url, err)
	}
	return n, err
}

func (b *ctxBody) Close() error {
	b.stop()
	return b.ReadCloser.Close()
}
