package transport

import (
	"unicode/utf8"

	"github.com/frankli0324/go-fetchstream/internal/legacy"
)

// ChunkParser turns the snapshot seen by a progress notification into
// the next chunk of the body. Parsers are stateful, one per request.
type ChunkParser interface {
	Parse(s legacy.Snapshot) []byte
	// Flush returns whatever is still held back once the body ended.
	Flush() []byte
}

type binaryParser struct{}

// Binary parses snapshots of the moz-chunked-arraybuffer response type,
// which already hold only the new bytes.
func Binary() ChunkParser { return binaryParser{} }

func (binaryParser) Parse(s legacy.Snapshot) []byte { return s.Chunk }
func (binaryParser) Flush() []byte                  { return nil }

type textParser struct {
	offset  int
	pending []byte
}

// Text parses the cumulative text snapshots of the text response type.
// Each call yields what was appended since the previous one, minus an
// incomplete UTF-8 sequence at the end, which is carried over to the
// next call.
func Text() ChunkParser { return &textParser{} }

func (p *textParser) Parse(s legacy.Snapshot) []byte {
	if len(s.Text) <= p.offset {
		return nil
	}
	buf := append(p.pending, s.Text[p.offset:]...)
	p.offset = len(s.Text)

	n := completePrefix(buf)
	p.pending = append([]byte(nil), buf[n:]...)
	return buf[:n]
}

func (p *textParser) Flush() []byte {
	b := p.pending
	p.pending = nil
	return b
}

// completePrefix returns the length of b without a trailing incomplete
// UTF-8 sequence. Invalid bytes count as complete.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return i
			}
			break
		}
	}
	return len(b)
}
