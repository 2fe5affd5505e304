// package testserver serves the /srv endpoints the integration tests run
// against:
//
//	?method=send-chunks          POST a JSON array of strings, each is written
//	                             back followed by "\n" as its own chunk
//	?method=echo                 replies with a JSON description of the request
//	?method=500                  replies with an intentional server error
//	?method=last-request-closed  reports whether the client closed the last
//	                             send-chunks request before it completed
//	?method=redirect&to=<method> 302 to another /srv method
//	?method=set-cookie&name=&value=
//	?method=charset&charset=     writes "héllo wörld" in the given charset
//	?method=split-rune           writes a multi-byte rune split across chunks
//	?method=truncated            announces 100 bytes, sends "abc" and hangs up
//	?method=truncated-chunked    hangs up in the middle of a chunk
package testserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

type Server struct {
	*httptest.Server

	// ChunkInterval is the delay between two chunks of send-chunks.
	ChunkInterval time.Duration

	lastClosed atomic.Bool
	inflight   sync.WaitGroup
}

// New starts a server. Close it with [Server.Close].
func New() *Server {
	s := &Server{ChunkInterval: 10 * time.Millisecond}
	mux := http.NewServeMux()
	mux.HandleFunc("/srv", s.handleSrv)
	s.Server = httptest.NewServer(mux)
	return s
}

// Srv returns the absolute url of a /srv method.
func (s *Server) Srv(method string) string {
	return s.URL + Path(method)
}

// Path returns the origin relative url of a /srv method.
func Path(method string) string {
	return "/srv?method=" + method
}

// LastRequestClosed waits for running send-chunks requests to finish and
// reports whether the last one was closed by the client.
func (s *Server) LastRequestClosed(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
	return s.lastClosed.Load()
}

func (s *Server) handleSrv(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch q.Get("method") {
	case "echo":
		s.echo(w, r)
	case "500":
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "Intentional server error")
	case "send-chunks":
		s.sendChunks(w, r)
	case "last-request-closed":
		writeJSON(w, map[string]bool{"value": s.LastRequestClosed(2 * time.Second)})
	case "redirect":
		http.Redirect(w, r, Path(q.Get("to")), http.StatusFound)
	case "set-cookie":
		http.SetCookie(w, &http.Cookie{Name: q.Get("name"), Value: q.Get("value"), Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	case "charset":
		s.charset(w, q.Get("charset"))
	case "split-rune":
		s.splitRune(w)
	case "truncated":
		hangUp(w, "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\nabc")
	case "truncated-chunked":
		hangUp(w, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n5\r\nde")
	default:
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Unsupported method: ?method="+q.Get("method"))
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Echo is the reply of ?method=echo.
type Echo struct {
	Headers map[string]string `json:"headers"`
	Method  string            `json:"method"`
	Cookies map[string]string `json:"cookies"`
	Body    string            `json:"body"`
}

func (s *Server) echo(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	e := Echo{
		Headers: map[string]string{},
		Cookies: map[string]string{},
		Method:  r.Method,
		Body:    string(body),
	}
	for k, v := range r.Header {
		e.Headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	for _, c := range r.Cookies() {
		e.Cookies[c.Name] = c.Value
	}
	w.Header().Set("X-Powered-By", "fetchstream-testserver")
	writeJSON(w, e)
}

func (s *Server) sendChunks(w http.ResponseWriter, r *http.Request) {
	s.inflight.Add(1)
	defer s.inflight.Done()
	s.lastClosed.Store(false)

	var chunks []string
	if err := json.NewDecoder(r.Body).Decode(&chunks); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Invalid JSON payload: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	flusher.Flush()

	for i, c := range chunks {
		if i > 0 {
			select {
			case <-r.Context().Done():
				s.lastClosed.Store(true)
				return
			case <-time.After(s.ChunkInterval):
			}
		}
		if _, err := io.WriteString(w, c+"\n"); err != nil {
			s.lastClosed.Store(true)
			return
		}
		flusher.Flush()
	}
}

// CharsetText is the text served by ?method=charset.
const CharsetText = "héllo wörld"

func (s *Server) charset(w http.ResponseWriter, name string) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "unknown charset %q", name)
		return
	}
	data, err := enc.NewEncoder().String(CharsetText)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset="+name)
	io.WriteString(w, data)
}

// SplitRuneText is the text served by ?method=split-rune; its euro sign
// is cut in the middle by a chunk boundary.
const SplitRuneText = "price: 5€"

func (s *Server) splitRune(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher := w.(http.Flusher)
	cut := strings.Index(SplitRuneText, "€") + 1
	io.WriteString(w, SplitRuneText[:cut])
	flusher.Flush()
	time.Sleep(s.ChunkInterval)
	io.WriteString(w, SplitRuneText[cut:])
	flusher.Flush()
}

// hangUp writes raw to the connection and closes it.
func hangUp(w http.ResponseWriter, raw string) {
	conn, buf, err := w.(http.Hijacker).Hijack()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer conn.Close()
	buf.WriteString(raw)
	buf.Flush()
}
