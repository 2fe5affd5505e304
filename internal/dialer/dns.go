package dialer

import (
	"context"
	"net"
)

type ResolveConfig struct {
	CustomDNSServer string
	Network         string            // one of "ip4", "ip6", default is "ip"
	StaticHosts     map[string]string // resembles /etc/hosts
}

func (c *ResolveConfig) Clone() *ResolveConfig {
	if c == nil {
		return nil
	}
	hosts := make(map[string]string, len(c.StaticHosts))
	for k, v := range c.StaticHosts {
		hosts[k] = v
	}
	return &ResolveConfig{
		CustomDNSServer: c.CustomDNSServer,
		Network:         c.Network,
		StaticHosts:     hosts,
	}
}

// Merge returns a copy of c with unset fields taken from fallback.
// Static hosts of c take precedence over those of fallback.
func (c *ResolveConfig) Merge(fallback *ResolveConfig) *ResolveConfig {
	if c == nil {
		return fallback.Clone()
	}
	m := c.Clone()
	if fallback == nil {
		return m
	}
	if m.CustomDNSServer == "" {
		m.CustomDNSServer = fallback.CustomDNSServer
	}
	if m.Network == "" {
		m.Network = fallback.Network
	}
	for k, v := range fallback.StaticHosts {
		if _, ok := m.StaticHosts[k]; !ok {
			m.StaticHosts[k] = v
		}
	}
	return m
}

func (c *ResolveConfig) tcpNetwork() string {
	if c != nil {
		switch c.Network {
		case "ip4":
			return "tcp4"
		case "ip6":
			return "tcp6"
		}
	}
	return "tcp"
}

func (c *ResolveConfig) customDNS() string {
	if c == nil {
		return ""
	}
	return c.CustomDNSServer
}

func (c *ResolveConfig) staticHost(host string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.StaticHosts[host]
	return v, ok
}

// this type should not be used outside this file.
// prevents non-custom DNS server contexts to iterate through all keys
type dnsServerCtx struct {
	context.Context
	server string
}

var dnsServerCtxKey = &dnsServerCtx{nil, "dns-server"} // non-nil pointer to any object, definitely unique

func (c dnsServerCtx) Value(key interface{}) interface{} {
	if key == dnsServerCtxKey {
		return c.server
	}
	return c.Context.Value(key)
}

var customServerResolver = net.Resolver{
	PreferGo: true,
	Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		if v, ok := ctx.Value(dnsServerCtxKey).(string); ok && v != "" {
			return zeroDialer.DialContext(ctx, network, v)
		}
		return zeroDialer.DialContext(ctx, network, address)
	},
}

func (d *CoreDialer) lookup(ctx context.Context, cfg *ResolveConfig, host string) (result []net.IP, err error) {
	if cfg == nil {
		return d.LookupIPServer(ctx, "ip", host, "")
	}
	network := cfg.Network
	if network == "" {
		network = "ip"
	}
	return d.LookupIPServer(ctx, network, host, cfg.CustomDNSServer)
}

// LookupIPServer performs DNS lookup for a host on a custom dns server,
// it calls [net.Resolver.LookupIP] with a Go Resolver behind the scenes.
// This part of logic may be reused when wrapping *[CoreDialer] into
// a new custom [Dialer]
func (d *CoreDialer) LookupIPServer(ctx context.Context, network, host, dns string) ([]net.IP, error) {
	return customServerResolver.LookupIP(dnsServerCtx{ctx, dns}, network, host)
}
