package fetchstream

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/frankli0324/go-fetchstream/internal/capability"
	"github.com/frankli0324/go-fetchstream/internal/metrics"
	"github.com/frankli0324/go-fetchstream/internal/transport"
)

type Environment = capability.Environment
type Config = capability.Config
type Capabilities = capability.Capabilities
type Strategy = capability.Strategy

const (
	StrategyNative = capability.StrategyNative
	StrategyBinary = capability.StrategyBinary
	StrategyText   = capability.StrategyText
)

// ParseStrategy maps "native", "binary" and "text" to their strategy.
func ParseStrategy(name string) (Strategy, error) { return capability.ParseStrategy(name) }

// NewEnvironment builds an environment on this module's own native and
// legacy clients.
func NewEnvironment(cfg *Config) (*Environment, error) { return capability.NewEnvironment(cfg) }

// TransportFactory picks the transport for env.
type TransportFactory func(env *Environment) (Strategy, Transport, error)

// Select is the default [TransportFactory]: it probes env and prefers
// native, then binary, then text.
func Select(env *Environment) (Strategy, Transport, error) { return capability.Select(env) }

// Force returns a [TransportFactory] that skips probing and always builds
// strategy s.
func Force(s Strategy) TransportFactory {
	return func(env *Environment) (Strategy, Transport, error) {
		tr, err := env.Transport(s)
		return s, tr, err
	}
}

// Client picks its transport on first use and keeps it for its lifetime.
// Fields must not be changed after the first request.
type Client struct {
	// Environment nil means NewEnvironment(nil).
	Environment *Environment
	// TransportFactory nil means [Select].
	TransportFactory TransportFactory
	// Logger receives the transport selection and per request debug logs.
	Logger *zap.Logger

	middlewares []Middleware

	once      sync.Once
	strategy  Strategy
	transport Transport
	err       error
}

// NewClient returns a client on a fresh environment built from cfg.
func NewClient(cfg *Config) (*Client, error) {
	env, err := NewEnvironment(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{Environment: env}
	if cfg != nil {
		c.Logger = cfg.Logger
	}
	return c, nil
}

// DefaultClient is used by the package level [Fetch].
var DefaultClient = &Client{}

// Fetch issues a request on [DefaultClient].
func Fetch(ctx context.Context, url string, opts *Options) (*Response, error) {
	return DefaultClient.Fetch(ctx, url, opts)
}

// Use appends mws to the end of the chain. The last "Use"d mw executes
// first. Call it before the first request.
func (c *Client) Use(mws ...Middleware) {
	c.middlewares = append(c.middlewares, mws...)
}

// Instrument records request metrics with col.
func (c *Client) Instrument(col *metrics.Collector) {
	c.Use(col.Middleware())
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Client) init() {
	env := c.Environment
	if env == nil {
		env, c.err = NewEnvironment(&Config{Logger: c.Logger})
		if c.err != nil {
			return
		}
		c.Environment = env
	}
	if env.Logger == nil && c.Logger != nil {
		withLogger := *env
		withLogger.Logger = c.Logger
		env = &withLogger
	}
	factory := c.TransportFactory
	if factory == nil {
		factory = Select
	}
	var tr Transport
	c.strategy, tr, c.err = factory(env)
	if c.err != nil {
		c.logger().Error("no transport available", zap.Error(c.err))
		return
	}
	c.transport = c.wrap(tr)
}

func (c *Client) wrap(tr Transport) Transport {
	if c.Logger != nil {
		tr = transport.Logging(c.Logger)(tr)
	}
	for _, mw := range c.middlewares {
		tr = mw(tr)
	}
	return tr
}

// Transport returns the transport picked for this client, running the
// selection on the first call.
func (c *Client) Transport() (Transport, error) {
	c.once.Do(c.init)
	return c.transport, c.err
}

func (c *Client) Strategy() (Strategy, error) {
	c.once.Do(c.init)
	return c.strategy, c.err
}

// Fetch issues a request and returns once its response headers arrived.
// ctx cancels the request, including the delivery of its body. A
// transport set in opts bypasses selection.
func (c *Client) Fetch(ctx context.Context, url string, opts *Options) (*Response, error) {
	if opts != nil && opts.Transport != nil {
		return c.wrap(opts.Transport)(ctx, url, opts)
	}
	tr, err := c.Transport()
	if err != nil {
		return nil, err
	}
	return tr(ctx, url, opts)
}
