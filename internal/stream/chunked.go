package stream

import (
	"context"
	"io"
	"sync"

	"github.com/frankli0324/go-fetchstream/internal/model"
)

type State int

const (
	StateReadable State = iota
	StateClosed
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateReadable:
		return "readable"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Chunked is an unbounded queue of chunks with a single terminal
// transition. Producers never block: progress notifications cannot be
// pushed back on.
type Chunked struct {
	mu    sync.Mutex
	queue [][]byte
	state State
	err   error
	wake  chan struct{}

	onCancel func()
}

var _ model.Body = (*Chunked)(nil)

// NewChunked returns a readable stream. onCancel, if not nil, runs once
// when the consumer cancels the stream while it is still readable.
func NewChunked(onCancel func()) *Chunked {
	return &Chunked{wake: make(chan struct{}), onCancel: onCancel}
}

// must be called with s.mu held
func (s *Chunked) signal() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// Enqueue appends a chunk. Empty chunks are dropped. It reports false
// once the stream reached a terminal state.
func (s *Chunked) Enqueue(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReadable {
		return false
	}
	if len(b) == 0 {
		return true
	}
	s.queue = append(s.queue, b)
	s.signal()
	return true
}

// Close marks the end of the body. Queued chunks are still delivered.
func (s *Chunked) Close() bool {
	return s.finish(StateClosed, nil)
}

// Error ends the body with err. Queued chunks are discarded.
func (s *Chunked) Error(err error) bool {
	return s.finish(StateErrored, err)
}

func (s *Chunked) finish(st State, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReadable {
		return false
	}
	s.state, s.err = st, err
	if st != StateClosed {
		s.queue = nil
	}
	s.signal()
	return true
}

// Cancel moves a readable stream to the cancelled state and runs the
// cancel callback. It is a no-op on a stream that already ended.
func (s *Chunked) Cancel() error {
	s.mu.Lock()
	if s.state != StateReadable {
		s.mu.Unlock()
		return nil
	}
	s.state = StateCancelled
	s.err = model.NewError(model.ErrAborted, "read", "", model.ErrBodyCancelled)
	s.queue = nil
	s.signal()
	s.mu.Unlock()

	if s.onCancel != nil {
		s.onCancel()
	}
	return nil
}

func (s *Chunked) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Next blocks until a chunk is available or the stream ended. A done ctx
// only interrupts the wait, it does not change the stream's state.
func (s *Chunked) Next(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			b := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return b, nil
		}
		switch s.state {
		case StateClosed:
			s.mu.Unlock()
			return nil, io.EOF
		case StateErrored, StateCancelled:
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}
