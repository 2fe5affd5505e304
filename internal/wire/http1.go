package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/frankli0324/go-fetchstream/internal/headers"
	"github.com/frankli0324/go-fetchstream/internal/model"
	"github.com/frankli0324/go-fetchstream/internal/wire/chunked"
)

type Response struct {
	Proto      string
	Status     string // e.g. "200 OK"
	StatusCode int
	StatusText string // e.g. "OK"
	Header     *headers.Headers

	ContentLength int64
	Body          io.ReadCloser
}

type bodyCloser struct {
	io.Reader
	close func() error
}

func (b bodyCloser) Close() error { return b.close() }

func Write(w io.Writer, r *model.PreparedRequest) error {
	body, err := r.GetBody() // can write body
	if err != nil {
		return err
	}
	defer body.Close() // request body is ALWAYS closed
	hasBody := body != http.NoBody

	bw := bufio.NewWriter(w) // default bufsize is 4096
	if err := writeHeader(bw, r, hasBody); err != nil {
		return err
	}
	if hasBody {
		if r.ContentLength == -1 {
			cw := chunked.NewChunkedWriter(bw)
			if _, err := io.Copy(cw, body); err != nil {
				return err
			}
			if err := cw.Close(); err != nil {
				return err
			}
		} else if _, err := io.CopyN(bw, body, r.ContentLength); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeHeader writes the status and header part of an http 1.1 request
// e.g.:
//
//	GET / HTTP/1.1\r\n
//	Host: www.google.com\r\n
//	x-xx-yy: cccccc\r\n
//	\r\n
func writeHeader(w *bufio.Writer, r *model.PreparedRequest, hasBody bool) error {
	w.WriteString(r.Method)
	w.WriteByte(' ')
	if r.Method == "CONNECT" {
		w.WriteString(r.U.Host)
	} else {
		w.WriteString(r.U.RequestURI())
	}
	w.WriteString(" HTTP/1.1\r\n")

	w.WriteString("Host: ")
	w.WriteString(r.HeaderHost)
	w.WriteString("\r\n")
	if r.ContentLength != -1 {
		w.WriteString("Content-Length: ")
		w.WriteString(strconv.FormatInt(r.ContentLength, 10))
		w.WriteString("\r\n")
	} else if hasBody {
		w.WriteString("Transfer-Encoding: chunked\r\n")
	}
	var err error
	r.Header.Range(func(k, v string) bool {
		w.WriteString(k)
		w.WriteString(": ")
		w.WriteString(v)
		_, err = w.WriteString("\r\n")
		return err == nil
	})
	if err != nil {
		return err
	}
	_, err = w.WriteString("\r\n")
	return err
}

// Read parses a response to a request with the given method. The body
// is streamed from r and closing it closes r when r is an [io.Closer].
func Read(r io.Reader, method string, resp *Response) (err error) {
	closer := io.NopCloser
	if cr, ok := r.(io.Closer); ok {
		closer = func(r io.Reader) io.ReadCloser { return bodyCloser{r, cr.Close} }
	}
	tp := textproto.NewReader(bufio.NewReader(r))

	line, err := tp.ReadLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	proto, status, ok := strings.Cut(line, " ")
	if !ok {
		return errors.New("malformed HTTP response")
	}
	resp.Proto = proto
	resp.Status = strings.TrimLeft(status, " ")

	statusCode, statusText, _ := strings.Cut(resp.Status, " ")
	if len(statusCode) != 3 {
		return errors.New("malformed HTTP status code " + statusCode)
	}
	resp.StatusCode, err = strconv.Atoi(statusCode)
	if err != nil || resp.StatusCode < 0 {
		return errors.New("malformed HTTP status code")
	}
	resp.StatusText = statusText

	if resp.Header, err = readFields(tp); err != nil {
		return err
	}
	return readTransfer(tp.R, method, resp, closer)
}

// readFields reads header fields keeping their order, which
// [textproto.Reader.ReadMIMEHeader] does not.
func readFields(tp *textproto.Reader) (*headers.Headers, error) {
	h := headers.New()
	for {
		line, err := tp.ReadContinuedLine()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok || k == "" || strings.TrimRight(k, " \t") != k {
			return nil, fmt.Errorf("malformed MIME header line: %q", line)
		}
		h.Append(k, textproto.TrimString(v))
	}
}

func bodyAllowed(method string, code int) bool {
	if method == "HEAD" || (code >= 100 && code < 200) {
		return false
	}
	if method == "CONNECT" && code >= 200 && code < 300 {
		return false // the tunnel follows
	}
	return code != http.StatusNoContent && code != http.StatusNotModified
}

func readTransfer(r io.Reader, method string, resp *Response, closer func(io.Reader) io.ReadCloser) error {
	contentLens := resp.Header.Values("Content-Length")

	// Hardening against HTTP request smuggling, taken from standard library
	if len(contentLens) > 1 {
		// Per RFC 7230 Section 3.3.2
		first := textproto.TrimString(contentLens[0])
		for _, ct := range contentLens[1:] {
			if first != textproto.TrimString(ct) {
				return fmt.Errorf("http: message cannot contain multiple Content-Length headers; got %q", contentLens)
			}
		}

		// deduplicate Content-Length
		resp.Header.Set("Content-Length", first)
		contentLens = []string{first}
	}

	cl := int64(-1)
	if len(contentLens) > 0 {
		n, err := strconv.ParseUint(textproto.TrimString(contentLens[0]), 10, 63)
		if err != nil {
			return fmt.Errorf("http: bad Content-Length %q", contentLens[0])
		}
		cl = int64(n)
	}

	if !bodyAllowed(method, resp.StatusCode) {
		resp.ContentLength = 0
		resp.Body = closer(strings.NewReader(""))
		return nil
	}

	if strings.EqualFold(resp.Header.Get("Transfer-Encoding"), "chunked") {
		resp.ContentLength = -1
		resp.Body = closer(chunked.NewChunkedReader(r))
		return nil
	}

	resp.ContentLength = cl
	switch {
	case cl > 0:
		resp.Body = closer(&lengthReader{r: r, n: cl})
	case cl == 0:
		resp.Body = closer(strings.NewReader(""))
	default:
		// no framing, the body ends when the server closes the connection
		resp.Body = closer(r)
	}
	return nil
}

// lengthReader reads exactly n bytes. A peer hanging up before all of
// them arrived is reported as [io.ErrUnexpectedEOF].
type lengthReader struct {
	r io.Reader
	n int64
}

func (l *lengthReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if err == io.EOF {
		if l.n > 0 {
			err = io.ErrUnexpectedEOF
		} else {
			err = nil
		}
	}
	if err == nil && l.n <= 0 {
		err = io.EOF
	}
	return n, err
}
