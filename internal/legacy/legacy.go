// package legacy provides a request object shaped like XMLHttpRequest: the
// response is not a stream but a snapshot that grows while progress
// notifications are delivered.
package legacy

import "errors"

type ReadyState int

const (
	Unsent ReadyState = iota
	Opened
	HeadersReceived
	Loading
	Done
)

func (s ReadyState) String() string {
	switch s {
	case Unsent:
		return "UNSENT"
	case Opened:
		return "OPENED"
	case HeadersReceived:
		return "HEADERS_RECEIVED"
	case Loading:
		return "LOADING"
	case Done:
		return "DONE"
	}
	return "INVALID"
}

type ResponseType string

const (
	ResponseText ResponseType = "text"
	// ResponseChunkedArrayBuffer makes every progress notification carry
	// only the bytes received since the previous one.
	ResponseChunkedArrayBuffer ResponseType = "moz-chunked-arraybuffer"
)

var (
	// ErrUnsupportedResponseType is raised by clients that refuse a
	// response type instead of ignoring it.
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrInvalidState            = errors.New("invalid state")
)

// Handlers are invoked from the goroutine driving the request. Nil
// handlers are skipped.
type Handlers struct {
	ReadyStateChange func()
	Progress         func()
	Load             func()
	Error            func(error)
	Timeout          func()
	Abort            func()
}

// Snapshot is the response as seen by a progress handler. Text is the
// whole text received so far in text mode; Chunk holds the newest bytes
// in chunked binary mode.
type Snapshot struct {
	Text  string
	Chunk []byte
}

type Request interface {
	Open(method, url string) error
	// SetResponseType either ignores unknown types, leaving the previous
	// one in place, or fails with ErrUnsupportedResponseType.
	SetResponseType(t ResponseType) error
	ResponseType() ResponseType
	SetWithCredentials(with bool)
	SetRequestHeader(key, value string) error
	SetHandlers(h Handlers)
	// Send starts the request in the background. Body is ignored for GET
	// and HEAD.
	Send(body interface{}) error
	// Abort tears the connection down. No handler but Abort is invoked
	// afterwards.
	Abort()

	ReadyState() ReadyState
	Status() int
	StatusText() string
	ResponseURL() string
	// AllResponseHeaders returns the header block, one "name: value"
	// line per field, CRLF terminated.
	AllResponseHeaders() string
	Response() Snapshot
}
