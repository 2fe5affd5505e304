package chunked

import (
	"bufio"
	"errors"
	"io"
	"net/textproto"
)

func NewChunkedReader(r io.Reader) io.Reader {
	var br *bufio.Reader
	if v, ok := r.(*bufio.Reader); ok {
		br = v
	} else {
		br = bufio.NewReader(r)
	}
	return &chunkedReader{Reader: br}
}

type chunkedReader struct {
	*bufio.Reader
	currentChunk                   io.Reader
	currentCount, currentChunkSize int64
	done                           bool
}

func (c *chunkedReader) readChunkHeader() (len uint64, err error) {
	cnt := 0
	isPref := true
	for isPref {
		var line []byte
		line, isPref, err = c.ReadLine()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		for _, b := range line {
			if b == ';' { // chunk extensions are ignored
				break
			}
			cnt++
			switch {
			case '0' <= b && b <= '9':
				b = b - '0'
			case 'a' <= b && b <= 'f':
				b = b - 'a' + 10
			case 'A' <= b && b <= 'F':
				b = b - 'A' + 10
			case b == ' ' || b == '\t':
				continue
			default:
				return 0, errors.New("invalid byte in chunk length")
			}
			len <<= 4
			len |= uint64(b)
		}
		if cnt >= 16 {
			return 0, errors.New("http chunk length too large")
		}
	}
	return
}

// skipTrailer consumes the trailer section after the last chunk.
func (c *chunkedReader) skipTrailer() error {
	_, err := textproto.NewReader(c.Reader).ReadMIMEHeader()
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (c *chunkedReader) Read(p []byte) (n int, err error) {
	for {
		if c.done {
			return 0, io.EOF
		}
		if c.currentChunk == nil {
			l, err := c.readChunkHeader()
			if err != nil {
				return 0, err
			}
			if l == 0 {
				if err := c.skipTrailer(); err != nil {
					return 0, err
				}
				c.done = true
				return 0, io.EOF
			}
			c.currentChunk = io.LimitReader(c.Reader, int64(l))
			c.currentChunkSize = int64(l)
		}
		n, err = c.currentChunk.Read(p)
		c.currentCount += int64(n)
		if err != io.EOF {
			return n, err
		}
		if c.currentCount != c.currentChunkSize {
			return n, io.ErrUnexpectedEOF
		}
		// the chunk data is followed by CRLF, consumed lazily so that a
		// chunk is handed out as soon as its data arrived
		if err := c.readCRLF(); err != nil {
			return n, err
		}
		c.currentChunk = nil
		c.currentCount = 0
		if n > 0 {
			return n, nil
		}
	}
}

func (c *chunkedReader) readCRLF() error {
	dr, err := c.Reader.ReadByte()
	if err == nil {
		var dn byte
		if dn, err = c.Reader.ReadByte(); err == nil {
			if dr != '\r' || dn != '\n' {
				return errors.New("malformed chunked encoding")
			}
			return nil
		}
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}
