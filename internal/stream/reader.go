package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/frankli0324/go-fetchstream/internal/model"
)

const defaultReadSize = 32 << 10

// ReaderBody exposes an [io.ReadCloser] as a [model.Body]. Each call to
// Next performs at most one Read on the underlying reader.
type ReaderBody struct {
	rc   io.ReadCloser
	size int

	mu        sync.Mutex
	err       error
	cancelled bool
	closeOnce sync.Once
	closeErr  error
}

var _ model.Body = (*ReaderBody)(nil)

func FromReader(rc io.ReadCloser) *ReaderBody {
	return &ReaderBody{rc: rc, size: defaultReadSize}
}

// close releases the underlying reader once the body reached a terminal
// state.
func (b *ReaderBody) close() error {
	b.closeOnce.Do(func() { b.closeErr = b.rc.Close() })
	return b.closeErr
}

func (b *ReaderBody) sticky() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *ReaderBody) fail(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		if b.cancelled && err != io.EOF {
			err = model.NewError(model.ErrAborted, "read", "", model.ErrBodyCancelled)
		}
		b.err = err
	}
	return b.err
}

// Next reads the next chunk. ctx is only consulted before reading: a
// blocked read is interrupted by the transport's own cancellation or by
// Cancel.
func (b *ReaderBody) Next(ctx context.Context) ([]byte, error) {
	if err := b.sticky(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, b.size)
	for {
		n, err := b.rc.Read(buf)
		if err != nil {
			err = b.fail(err)
			b.close()
		}
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (b *ReaderBody) Cancel() error {
	b.mu.Lock()
	if b.err != nil || b.cancelled {
		b.mu.Unlock()
		return nil
	}
	b.cancelled = true
	b.mu.Unlock()
	err := b.close()
	b.fail(model.NewError(model.ErrAborted, "read", "", model.ErrBodyCancelled))
	return err
}

type bodyReader struct {
	ctx     context.Context
	body    model.Body
	pending []byte
}

// NewReader adapts a body to [io.ReadCloser]. Closing the reader cancels
// the body.
func NewReader(ctx context.Context, body model.Body) io.ReadCloser {
	return &bodyReader{ctx: ctx, body: body}
}

func (r *bodyReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		chunk, err := r.body.Next(r.ctx)
		if err != nil {
			return 0, err
		}
		r.pending = chunk
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *bodyReader) Close() error {
	return r.body.Cancel()
}

// ReadAll drains body and returns every chunk in delivery order.
func ReadAll(ctx context.Context, body model.Body) ([][]byte, error) {
	var chunks [][]byte
	for {
		chunk, err := body.Next(ctx)
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}
