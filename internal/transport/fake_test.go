package transport_test

import (
	"sync"

	"github.com/frankli0324/go-fetchstream/internal/headers"
	"github.com/frankli0324/go-fetchstream/internal/legacy"
)

// fakeRequest is a legacy request driven by a script instead of a
// connection. The script runs on its own goroutine once Send is called.
type fakeRequest struct {
	script     func(f *fakeRequest)
	rejectType bool

	mu        sync.Mutex
	method    string
	url       string
	respType  legacy.ResponseType
	withCreds bool
	header    *headers.Headers
	h         legacy.Handlers
	state     legacy.ReadyState
	body      interface{}
	sent      bool
	aborts    int
	abortedCh chan struct{}

	status     int
	statusText string
	respURL    string
	rawHeader  string
	snap       legacy.Snapshot
}

func newFake(script func(f *fakeRequest)) *fakeRequest {
	return &fakeRequest{script: script, respType: legacy.ResponseText, abortedCh: make(chan struct{})}
}

func (f *fakeRequest) Open(method, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method, f.url = method, url
	f.header = headers.New()
	f.state = legacy.Opened
	return nil
}

func (f *fakeRequest) SetResponseType(t legacy.ResponseType) error {
	if f.rejectType {
		return legacy.ErrUnsupportedResponseType
	}
	f.mu.Lock()
	f.respType = t
	f.mu.Unlock()
	return nil
}

func (f *fakeRequest) ResponseType() legacy.ResponseType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.respType
}

func (f *fakeRequest) SetWithCredentials(with bool) {
	f.mu.Lock()
	f.withCreds = with
	f.mu.Unlock()
}

func (f *fakeRequest) SetRequestHeader(key, value string) error {
	f.mu.Lock()
	f.header.Append(key, value)
	f.mu.Unlock()
	return nil
}

func (f *fakeRequest) SetHandlers(h legacy.Handlers) {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
}

func (f *fakeRequest) Send(body interface{}) error {
	f.mu.Lock()
	f.body, f.sent = body, true
	f.mu.Unlock()
	if f.script != nil {
		go f.script(f)
	}
	return nil
}

func (f *fakeRequest) Abort() {
	f.mu.Lock()
	f.aborts++
	first := f.aborts == 1
	f.mu.Unlock()
	if first {
		close(f.abortedCh)
	}
}

func (f *fakeRequest) abortCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborts
}

func (f *fakeRequest) ReadyState() legacy.ReadyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeRequest) Status() int                { return f.status }
func (f *fakeRequest) StatusText() string         { return f.statusText }
func (f *fakeRequest) ResponseURL() string        { return f.respURL }
func (f *fakeRequest) AllResponseHeaders() string { return f.rawHeader }

func (f *fakeRequest) Response() legacy.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeRequest) setState(st legacy.ReadyState) {
	f.mu.Lock()
	f.state = st
	h := f.h.ReadyStateChange
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// script steps

func (f *fakeRequest) headersReceived(status int, text, raw string) {
	f.status, f.statusText, f.rawHeader = status, text, raw
	f.setState(legacy.HeadersReceived)
}

func (f *fakeRequest) text(s string) {
	f.mu.Lock()
	f.snap = legacy.Snapshot{Text: s}
	f.mu.Unlock()
	f.setState(legacy.Loading)
	f.h.Progress()
}

func (f *fakeRequest) chunk(b string) {
	f.mu.Lock()
	f.snap = legacy.Snapshot{Chunk: []byte(b)}
	f.mu.Unlock()
	f.setState(legacy.Loading)
	f.h.Progress()
}

func (f *fakeRequest) load() {
	f.setState(legacy.Done)
	f.h.Load()
}

func (f *fakeRequest) fail(err error) {
	f.setState(legacy.Done)
	f.h.Error(err)
}

func (f *fakeRequest) timeout() {
	f.setState(legacy.Done)
	f.h.Timeout()
}
