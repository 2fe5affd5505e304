package capability

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/frankli0324/go-fetchstream/internal/client"
	"github.com/frankli0324/go-fetchstream/internal/dialer"
	"github.com/frankli0324/go-fetchstream/internal/legacy"
)

// Config describes a host environment built on this module's own
// clients. The zero value offers a streaming native client and a legacy
// client supporting chunked binary progress.
type Config struct {
	// Origin resolves relative urls and scopes default credentials.
	Origin string

	DisableNative bool
	// DisableNativeStreaming keeps the native client but makes it buffer
	// whole bodies, which rules it out.
	DisableNativeStreaming bool
	DisableChunkedBinary   bool
	// DisableHTTP2 keeps https requests on HTTP/1.1.
	DisableHTTP2 bool

	// Timeout bounds legacy requests, body included.
	Timeout      time.Duration
	MaxRedirects int
	Jar          http.CookieJar // nil means a fresh in-memory jar
	Dialer       dialer.Dialer  // nil means dialer.Default()

	Logger *zap.Logger
}

func NewEnvironment(cfg *Config) (*Environment, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var origin *url.URL
	if cfg.Origin != "" {
		u, err := url.Parse(cfg.Origin)
		if err != nil {
			return nil, err
		}
		origin = u
	}
	jar := cfg.Jar
	if jar == nil {
		var err error
		jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
	}
	native := &client.Client{
		Dialer:           cfg.Dialer,
		Jar:              jar,
		Origin:           origin,
		MaxRedirects:     cfg.MaxRedirects,
		DisableStreaming: cfg.DisableNativeStreaming,
	}
	lc := &legacy.Config{
		Client: &client.Client{
			Dialer:       cfg.Dialer,
			Jar:          jar,
			Origin:       origin,
			MaxRedirects: cfg.MaxRedirects,
		},
		Timeout:       cfg.Timeout,
		ChunkedBinary: !cfg.DisableChunkedBinary,
	}
	if cfg.DisableHTTP2 {
		native.DisableH2()
		lc.Client.DisableH2()
	}
	env := &Environment{
		Origin:    origin,
		NewLegacy: lc.New,
		Logger:    cfg.Logger,
	}
	if !cfg.DisableNative {
		env.Native = native
	}
	return env, nil
}
