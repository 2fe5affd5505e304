package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frankli0324/go-fetchstream/internal/legacy"
	"github.com/frankli0324/go-fetchstream/internal/transport"
)

func TestTextParser(t *testing.T) {
	for name, tc := range map[string]struct {
		snapshots []string
		want      []string
		flush     string
	}{
		"Ascii":       {[]string{"he", "hell", "hello"}, []string{"he", "ll", "o"}, ""},
		"NoGrowth":    {[]string{"a", "a", "ab"}, []string{"a", "", "b"}, ""},
		"SplitEuro":   {[]string{"\xe2", "\xe2\x82", "\xe2\x82\xac"}, []string{"", "", "€"}, ""},
		"HeldAtEnd":   {[]string{"ok\xf0\x9f"}, []string{"ok"}, "\xf0\x9f"},
		"InvalidByte": {[]string{"a\xff", "a\xffb"}, []string{"a\xff", "b"}, ""},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			p := transport.Text()
			for i, s := range tc.snapshots {
				assert.Equal(t, tc.want[i], string(p.Parse(legacy.Snapshot{Text: s})), "snapshot %d", i)
			}
			assert.Equal(t, tc.flush, string(p.Flush()))
			assert.Empty(t, p.Flush())
		})
	}
}

func TestBinaryParser(t *testing.T) {
	p := transport.Binary()
	assert.Equal(t, []byte("abc"), p.Parse(legacy.Snapshot{Chunk: []byte("abc"), Text: "ignored"}))
	assert.Nil(t, p.Flush())
}
