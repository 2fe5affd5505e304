package chunked_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-fetchstream/internal/wire/chunked"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := chunked.NewChunkedWriter(&buf)
	for _, s := range []string{"chunk1", "", "chunk2"} {
		_, err := w.Write([]byte(s))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	assert.Equal(t, "6\r\nchunk1\r\n6\r\nchunk2\r\n0\r\n\r\n", buf.String())

	data, err := io.ReadAll(chunked.NewChunkedReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "chunk1chunk2", string(data))
}

func TestReaderErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"Truncated":   "6\r\nchu",
		"BadLength":   "zz\r\n",
		"MissingCRLF": "1\r\naXX0\r\n\r\n",
		"NoTerminal":  "1\r\na\r\n",
	} {
		raw := raw
		t.Run(name, func(t *testing.T) {
			_, err := io.ReadAll(chunked.NewChunkedReader(strings.NewReader(raw)))
			assert.Error(t, err)
		})
	}
}
