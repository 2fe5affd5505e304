package dialer_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-fetchstream/dialer"
	"github.com/frankli0324/go-fetchstream/internal/model"
)

type countingDialer struct {
	next  dialer.Dialer
	dials int
}

func (d *countingDialer) Dial(ctx context.Context, r *model.PreparedRequest) (net.Conn, error) {
	d.dials++
	return d.next.Dial(ctx, r)
}

func (d *countingDialer) Unwrap() dialer.Dialer { return d.next }

func TestDefault(t *testing.T) {
	d := dialer.Default()
	require.NotNil(t, d.TLSConfig)
	assert.Equal(t, []string{"h2", "http/1.1"}, d.TLSConfig.NextProtos)

	d.TLSConfig.NextProtos = nil
	assert.NotEmpty(t, dialer.Default().TLSConfig.NextProtos)
}

func TestCore(t *testing.T) {
	core := dialer.Default()
	wrapped := &countingDialer{next: &countingDialer{next: core}}
	assert.Same(t, core, dialer.Core(wrapped))
	assert.Same(t, core, dialer.Core(core))
	assert.Nil(t, dialer.Core(nil))
}
