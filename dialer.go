package fetchstream

import (
	"github.com/frankli0324/go-fetchstream/internal/dialer"
)

type Dialer = dialer.Dialer
type CoreDialer = dialer.CoreDialer

type ProxyConfig = dialer.ProxyConfig
type ResolveConfig = dialer.ResolveConfig

// DefaultDialer returns a fresh copy of the dialer used when
// [Config.Dialer] is nil.
func DefaultDialer() *CoreDialer { return dialer.Default() }
