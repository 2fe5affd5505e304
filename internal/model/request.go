package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/frankli0324/go-fetchstream/internal/headers"
)

// Request is a single exchange as it is put on the wire. Transports build
// it from [Options] after resolving the URL.
type Request struct {
	Method string
	URL    string
	Body   interface{}
	Header *headers.Headers
}

type PreparedRequest struct {
	*Request

	U          *url.URL
	GetBody    func() (io.ReadCloser, error)
	Header     *headers.Headers
	HeaderHost string

	ContentLength int64 // -1 when unknown
}

var methods = []string{"DELETE", "GET", "HEAD", "OPTIONS", "PATCH", "POST", "PUT"}

// NormalizeMethod defaults an empty method to GET and upper-cases the
// well known ones, leaving extension methods untouched.
func NormalizeMethod(m string) string {
	if m == "" {
		return "GET"
	}
	for _, std := range methods {
		if strings.EqualFold(m, std) {
			return std
		}
	}
	return m
}

// HasBody reports whether b carries a request body. nil and empty
// strings or byte slices do not.
func HasBody(b interface{}) bool {
	switch b := b.(type) {
	case nil:
		return false
	case string:
		return b != ""
	case []byte:
		return len(b) != 0
	}
	return true
}

// CheckBody rejects a body on GET and HEAD requests.
func CheckBody(method string, body interface{}) error {
	if !HasBody(body) {
		return nil
	}
	if m := NormalizeMethod(method); m == "GET" || m == "HEAD" {
		return ErrGetWithBody
	}
	return nil
}

func (r *Request) Prepare() (*PreparedRequest, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported protocol scheme %q", u.Scheme)
	}

	hdr := r.Header.Clone()
	host := u.Host
	cl := int64(-1)
	// user defined headers has higher priority
	if v, ok := hdr.Lookup("host"); ok {
		host = v
		hdr.Del("host")
	}
	if v, ok := hdr.Lookup("content-length"); ok {
		if v, err := strconv.ParseInt(v, 10, 64); err == nil {
			cl = v
		}
		hdr.Del("content-length")
	}
	if host == "" {
		return nil, url.InvalidHostError("empty host")
	}

	pr := &PreparedRequest{
		Request: r, U: u,
		Header: hdr, HeaderHost: host,
		ContentLength: -1,
	}
	if err := pr.updateBody(); err != nil {
		return nil, err
	}
	if cl != -1 {
		if pr.ContentLength != -1 && pr.ContentLength != cl {
			return nil, errors.New("conflicting value between body size and content-length request header")
		}
		pr.ContentLength = cl
	}
	return pr, nil
}

// should only be called once at [Request.Prepare]
func (r *PreparedRequest) updateBody() (err error) {
	if !HasBody(r.Request.Body) {
		r.GetBody = func() (io.ReadCloser, error) {
			return http.NoBody, nil
		}
		if m := NormalizeMethod(r.Method); m == "POST" || m == "PUT" || m == "PATCH" {
			r.ContentLength = 0
		}
		return nil
	}
	switch b := r.Request.Body.(type) {
	case string:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(b)), nil
		}
	case []byte:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
	case *bytes.Buffer: // below is taken from http.NewRequest
		r.ContentLength = int64(b.Len())
		buf := b.Bytes()
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	case *bytes.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			r := snapshot
			return io.NopCloser(&r), nil
		}
	case *strings.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			r := snapshot
			return io.NopCloser(&r), nil
		}
	case io.Reader:
		if sizer, ok := b.(interface{ Size() int64 }); ok {
			r.ContentLength = sizer.Size()
		}
		cb, ok := b.(io.ReadCloser)
		if !ok {
			cb = io.NopCloser(b)
		}
		var once atomic.Bool
		r.GetBody = func() (io.ReadCloser, error) {
			if once.CompareAndSwap(false, true) {
				return cb, nil
			}
			return nil, http.ErrBodyReadAfterClose
		}
	default:
		return fmt.Errorf("unsupported body type: %T", r.Request.Body)
	}
	return nil
}

// ReplayableBody reports whether b can be sent again, e.g. when following
// a 307 redirect. Plain readers are consumed by the first attempt.
func ReplayableBody(b interface{}) bool {
	switch b.(type) {
	case *bytes.Buffer, *bytes.Reader, *strings.Reader:
		return true
	case io.Reader:
		return false
	}
	return true
}
