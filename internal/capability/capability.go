// package capability decides, once per environment, which transport
// strategy streams response bodies: the native client when its bodies
// stream, else the legacy client in chunked binary mode, else the legacy
// client in text mode.
package capability

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/frankli0324/go-fetchstream/internal/legacy"
	"github.com/frankli0324/go-fetchstream/internal/model"
	"github.com/frankli0324/go-fetchstream/internal/transport"
)

// Environment describes what the host offers. Native may be nil.
type Environment struct {
	Origin    *url.URL
	Native    transport.NativeClient
	NewLegacy func() legacy.Request
	Logger    *zap.Logger
}

func (env *Environment) logger() *zap.Logger {
	if env.Logger == nil {
		return zap.NewNop()
	}
	return env.Logger
}

// streamer is implemented by native clients that can tell whether their
// bodies are delivered incrementally.
type streamer interface {
	StreamingBody() bool
}

type Capabilities struct {
	NativeStreaming bool
	ChunkedBinary   bool
}

func (c Capabilities) Strategy() Strategy {
	switch {
	case c.NativeStreaming:
		return StrategyNative
	case c.ChunkedBinary:
		return StrategyBinary
	}
	return StrategyText
}

// Probe inspects env. Faults raised by the legacy client while probing
// count as missing support.
func Probe(env *Environment) Capabilities {
	var c Capabilities
	if env.Native != nil {
		c.NativeStreaming = true
		if s, ok := env.Native.(streamer); ok {
			c.NativeStreaming = s.StreamingBody()
		}
	}
	ok, err := supportsResponseType(env.NewLegacy, legacy.ResponseChunkedArrayBuffer)
	if err != nil {
		env.logger().Debug("response type probe failed",
			zap.String("response_type", string(legacy.ResponseChunkedArrayBuffer)), zap.Error(err))
	}
	c.ChunkedBinary = ok
	return c
}

func supportsResponseType(newReq func() legacy.Request, t legacy.ResponseType) (ok bool, err error) {
	if newReq == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	x := newReq()
	if err := x.SetResponseType(t); err != nil {
		return false, err
	}
	return x.ResponseType() == t, nil
}

// Select probes env and builds the transport of the best strategy. It
// fails only when env offers no client at all.
func Select(env *Environment) (Strategy, model.Transport, error) {
	caps := Probe(env)
	s := caps.Strategy()
	tr, err := env.Transport(s)
	if err != nil {
		return s, nil, err
	}
	env.logger().Info("transport selected",
		zap.Stringer("strategy", s),
		zap.Bool("native_streaming", caps.NativeStreaming),
		zap.Bool("chunked_binary", caps.ChunkedBinary))
	return s, tr, nil
}

// Transport builds the transport of strategy s without probing.
func (env *Environment) Transport(s Strategy) (model.Transport, error) {
	switch s {
	case StrategyNative:
		if env.Native == nil {
			return nil, fmt.Errorf("strategy %s: no native client", s)
		}
		return transport.Native(env.Native), nil
	case StrategyBinary, StrategyText:
		if env.NewLegacy == nil {
			return nil, fmt.Errorf("strategy %s: no legacy client", s)
		}
		e := &transport.Emulated{
			NewRequest:   env.NewLegacy,
			ResponseType: legacy.ResponseText,
			NewParser:    transport.Text,
			Origin:       env.Origin,
			Logger:       env.logger(),
		}
		if s == StrategyBinary {
			e.ResponseType = legacy.ResponseChunkedArrayBuffer
			e.NewParser = transport.Binary
		}
		return e.Transport(), nil
	}
	return nil, fmt.Errorf("unknown strategy %d", int(s))
}
