package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"syscall"

	"github.com/frankli0324/go-fetchstream/internal/model"
)

var schemes = map[string]string{
	"http": "80", "https": "443", "socks": "1080",
}

var zeroDialer net.Dialer

func hostPort(u *url.URL) (addr, port string) {
	addr, port = u.Host, schemes[u.Scheme]
	if add, prt, err := net.SplitHostPort(addr); err == nil {
		addr, port = add, prt
	}
	return
}

func (d *CoreDialer) netDialer(rc *ResolveConfig) *net.Dialer {
	nd := &net.Dialer{Timeout: d.Timeout}
	if rc.customDNS() != "" {
		nd.Resolver = &customServerResolver
	}
	if d.UserTimeout > 0 {
		ut := d.UserTimeout
		nd.Control = func(network, address string, c syscall.RawConn) error {
			return setUserTimeout(c, ut)
		}
	}
	return nd
}

func (d *CoreDialer) Dial(ctx context.Context, r *model.PreparedRequest) (net.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	conn, err := d.tryDialProxy(ctx, r)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		addr, port := hostPort(r.U)
		// as of now net.Dialer could handle current DNS configurations
		rc := d.ResolveConfig
		network, dialctx, dst := rc.tcpNetwork(), ctx, net.JoinHostPort(addr, port)
		if static, ok := rc.staticHost(addr); ok {
			dst = net.JoinHostPort(static, port)
		}
		if dns := rc.customDNS(); dns != "" {
			dialctx = dnsServerCtx{dialctx, dns}
		}
		conn, err = d.netDialer(rc).DialContext(dialctx, network, dst)
		if err != nil {
			return nil, err
		}
	}
	if r.U.Scheme == "https" {
		config := d.TLSConfig.Clone()
		if config == nil {
			config = &tls.Config{}
		}
		if config.ServerName == "" {
			config.ServerName = r.U.Hostname()
		}
		c := tls.Client(conn, config)
		if err := c.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = c
	}
	return conn, nil
}

// IsH2 reports whether conn negotiated HTTP/2 through ALPN.
func IsH2(conn net.Conn) bool {
	if c, ok := conn.(*tls.Conn); ok {
		return c.ConnectionState().NegotiatedProtocol == "h2"
	}
	return false
}
