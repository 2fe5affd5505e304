// package metrics instruments transports with prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/frankli0324/go-fetchstream/internal/model"
)

const namespace = "fetchstream"

type Collector struct {
	requests      *prometheus.CounterVec
	timeToHeaders *prometheus.HistogramVec
	chunks        prometheus.Counter
	bytes         prometheus.Counter
	bodyEnds      *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg registers them on
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests by method and outcome: the status class once headers arrived, or the fault kind.",
		}, []string{"method", "outcome"}),
		timeToHeaders: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_headers_seconds",
			Help:      "Time from issuing a request until its response headers arrived.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method"}),
		chunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "body",
			Name:      "chunks_total",
			Help:      "Body chunks delivered to consumers.",
		}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "body",
			Name:      "bytes_total",
			Help:      "Body bytes delivered to consumers.",
		}),
		bodyEnds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "body",
			Name:      "ends_total",
			Help:      "Bodies by how they ended: closed, aborted or network.",
		}, []string{"outcome"}),
	}
}

// Outcome classifies err as one of "invalid", "network" or "aborted".
// Other errors are "error".
func Outcome(err error) string {
	switch {
	case errors.Is(err, model.ErrAborted):
		return "aborted"
	case errors.Is(err, model.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, model.ErrNetwork):
		return "network"
	}
	return "error"
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return string(rune('0'+status/100)) + "xx"
}

// BodyEnds returns the counter of bodies that ended with outcome.
func (c *Collector) BodyEnds(outcome string) prometheus.Counter {
	return c.bodyEnds.WithLabelValues(outcome)
}

func (c *Collector) Middleware() model.Middleware {
	return func(next model.Transport) model.Transport {
		return func(ctx context.Context, url string, opts *model.Options) (*model.Response, error) {
			method := "GET"
			if opts != nil {
				method = model.NormalizeMethod(opts.Method)
			}
			start := time.Now()
			resp, err := next(ctx, url, opts)
			if err != nil {
				c.requests.WithLabelValues(method, Outcome(err)).Inc()
				return nil, err
			}
			c.timeToHeaders.WithLabelValues(method).Observe(time.Since(start).Seconds())
			c.requests.WithLabelValues(method, statusClass(resp.Status)).Inc()

			instrumented := *resp
			instrumented.Body = &body{Body: resp.Body, c: c}
			return &instrumented, nil
		}
	}
}

type body struct {
	model.Body
	c     *Collector
	ended atomic.Bool
}

func (b *body) Next(ctx context.Context) ([]byte, error) {
	chunk, err := b.Body.Next(ctx)
	if err == nil {
		b.c.chunks.Inc()
		b.c.bytes.Add(float64(len(chunk)))
		return chunk, nil
	}
	// ctx.Err() only means this wait was interrupted
	if err != ctx.Err() && b.ended.CompareAndSwap(false, true) {
		outcome := "closed"
		if err != io.EOF {
			outcome = Outcome(err)
		}
		b.c.bodyEnds.WithLabelValues(outcome).Inc()
	}
	return nil, err
}
