package dialer

import (
	"github.com/frankli0324/go-fetchstream/internal/dialer"
)

// Dialers are responsible for creating the connections requests are
// written to and responses are read from. for example, opening a raw TCP
// connection and performing the TLS handshake for https urls.
//
// A Dialer MUST NOT hold connection state: every request dials anew and
// the connection is closed together with the response body. Like
// [net/http.Transport], it SHOULD hold the connection related configs
// like [ProxyConfig] or *[crypto/tls.Config].
type Dialer = dialer.Dialer

// CoreDialer is the default implementation of the [Dialer] interface. It is
// used when no dialer is configured.
type CoreDialer = dialer.CoreDialer

type ProxyConfig = dialer.ProxyConfig

// we need a dedicated resolver for two scenarios:
//
//  1. Resolve remote address locally in proxied requests
//  2. to customize the DNS server used for resolving hostname
//
// the standard library only follows the system configuration (e.g.
// /etc/resolv.conf), leaving us only the [net.Resolver.Dial] hook of a Go
// Resolver to point lookups at another server.
type ResolveConfig = dialer.ResolveConfig

// Default returns a fresh copy of the dialer used by a zero value client.
func Default() *CoreDialer { return dialer.Default() }

// Core walks a chain of wrapping dialers down to its *[CoreDialer].
func Core(d Dialer) *CoreDialer { return dialer.Core(d) }
