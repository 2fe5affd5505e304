package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/frankli0324/go-fetchstream/internal/model"
)

// Dialers handle pretty much everything related to the actual connection,
// including setting a proxy for each request, setting resolvers, etc.
type Dialer interface {
	// Dial returns a connection ready for the request to be written to.
	// for https urls the connection is a *[tls.Conn] after handshake.
	Dial(ctx context.Context, r *model.PreparedRequest) (net.Conn, error)
	Unwrap() Dialer
}

type CoreDialer struct {
	ResolveConfig *ResolveConfig

	TLSConfig *tls.Config // the config to use

	GetProxy    func(ctx context.Context, r *model.Request) (string, error)
	ProxyConfig *ProxyConfig

	// Timeout bounds connection establishment, TLS handshake included.
	Timeout time.Duration
	// UserTimeout is how long transmitted data may stay unacknowledged
	// before the connection is dropped. Only honored on Linux.
	UserTimeout time.Duration
}

// Default returns the dialer used by a zero value client: ALPN offers
// h2 and http/1.1, no proxy and the system resolver.
func Default() *CoreDialer {
	return &CoreDialer{
		TLSConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
		ProxyConfig: &ProxyConfig{
			TLSConfig: &tls.Config{}, // don't want h2
		},
		Timeout: 30 * time.Second,
	}
}

func (d *CoreDialer) Clone() *CoreDialer {
	return &CoreDialer{
		ResolveConfig: d.ResolveConfig.Clone(),
		TLSConfig:     d.TLSConfig.Clone(),
		GetProxy:      d.GetProxy,
		ProxyConfig:   d.ProxyConfig.Clone(),
		Timeout:       d.Timeout,
		UserTimeout:   d.UserTimeout,
	}
}

func (d *CoreDialer) Unwrap() Dialer {
	return nil
}

// Core walks the chain of wrapped dialers down to the first *[CoreDialer].
func Core(d Dialer) *CoreDialer {
	for d != nil {
		if cd, ok := d.(*CoreDialer); ok {
			return cd
		}
		d = d.Unwrap()
	}
	return nil
}
