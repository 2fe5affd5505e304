package dialer

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"

	"github.com/frankli0324/go-fetchstream/internal/headers"
	"github.com/frankli0324/go-fetchstream/internal/model"
	"github.com/frankli0324/go-fetchstream/internal/wire"
)

type ProxyConfig struct {
	TLSConfig      *tls.Config // the [*tls.Config] to use with proxy, if nil, *[CoreDialer.TLSConfig] will be used
	ResolveLocally bool
	ResolveConfig  *ResolveConfig // overrides the resolver config for dialer for proxy
}

func (c *ProxyConfig) Clone() *ProxyConfig {
	if c == nil {
		return nil
	}
	return &ProxyConfig{
		TLSConfig:      c.TLSConfig.Clone(),
		ResolveLocally: c.ResolveLocally,
		ResolveConfig:  c.ResolveConfig.Clone(),
	}
}

func (d *CoreDialer) tryDialProxy(ctx context.Context, r *model.PreparedRequest) (net.Conn, error) {
	if d.GetProxy != nil {
		proxy, perr := d.GetProxy(ctx, r.Request)
		if perr != nil {
			return nil, perr
		}
		if proxy != "" {
			proxyU, perr := url.Parse(proxy)
			if perr != nil {
				return nil, perr
			}
			return d.DialContextOverProxy(ctx, r.U, proxyU)
		}
	}
	return nil, nil
}

// DialContextOverProxy creates a tunnel to remote over an http(s) proxy.
// This part of logic may be reused when wrapping *[CoreDialer] into
// a new custom [Dialer]
func (d *CoreDialer) DialContextOverProxy(ctx context.Context, remote, proxy *url.URL) (net.Conn, error) {
	if proxy.Scheme != "http" && proxy.Scheme != "https" {
		return nil, errors.New("unsupported proxy scheme: " + proxy.Scheme)
	}
	paddr, pport := hostPort(proxy)
	conn, err := zeroDialer.DialContext(ctx, "tcp", net.JoinHostPort(paddr, pport))
	if err != nil {
		return nil, err
	}

	pc := d.ProxyConfig
	if pc == nil {
		pc = &ProxyConfig{}
	}
	if proxy.Scheme == "https" {
		tlsCfg := pc.TLSConfig.Clone()
		if tlsCfg == nil {
			tlsCfg = d.TLSConfig.Clone()
		}
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		}
		if tlsCfg.ServerName == "" {
			tlsCfg.ServerName = proxy.Hostname()
		}
		c := tls.Client(conn, tlsCfg)
		if err := c.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = c
	}

	addr, port := hostPort(remote)
	if pc.ResolveLocally {
		dnsCfg := pc.ResolveConfig.Merge(d.ResolveConfig)
		if res, ok := dnsCfg.staticHost(addr); ok {
			addr = res
		} else {
			ips, err := d.lookup(ctx, dnsCfg, addr)
			if err != nil {
				conn.Close()
				return nil, err
			}
			if len(ips) == 0 {
				conn.Close()
				return nil, fmt.Errorf("no address found for %s", addr)
			}
			addr = ips[rand.Intn(len(ips))].String()
		}
	}

	connReq := &model.PreparedRequest{
		Request:       &model.Request{Method: "CONNECT"},
		HeaderHost:    remote.Host,
		U:             &url.URL{Host: net.JoinHostPort(addr, port)},
		Header:        headers.New(),
		GetBody:       func() (io.ReadCloser, error) { return http.NoBody, nil },
		ContentLength: -1,
	}
	if proxy.User != nil {
		auth := proxy.User.String()
		if p, ok := proxy.User.Password(); ok {
			auth = proxy.User.Username() + ":" + p
		}
		connReq.Header.Set("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
	}
	if err := wire.Write(conn, connReq); err != nil {
		conn.Close()
		return nil, err
	}
	resp := &wire.Response{}
	if err := wire.Read(conn, "CONNECT", resp); err != nil {
		conn.Close()
		return nil, err
	}
	if resp.StatusCode != 200 {
		s, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		conn.Close()
		return nil, fmt.Errorf("proxy server returned error. status:%d, body:%s", resp.StatusCode, string(s))
	}
	return conn, nil
}
