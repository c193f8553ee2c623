package model

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/furisto/relay/schema"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "requests_total",
		Help:      "Generation requests by provider, model and outcome.",
	}, []string{"provider", "model", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Name:      "request_duration_seconds",
		Help:      "Generation request latency.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider", "model"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "tokens_total",
		Help:      "Tokens consumed by provider and direction.",
	}, []string{"provider", "direction"})
)

// Instrument wraps a provider with request metrics.
func Instrument(p Provider) Provider {
	return &measuredProvider{inner: p}
}

type measuredProvider struct {
	inner Provider
}

func (m *measuredProvider) Name() string                      { return m.inner.Name() }
func (m *measuredProvider) Capabilities() schema.Capabilities { return m.inner.Capabilities() }

func (m *measuredProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result, err := m.inner.Generate(ctx, req)
	m.observe(req.Model, start, err)
	if result != nil {
		m.observeUsage(result.Usage)
	}
	return result, err
}

func (m *measuredProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	start := time.Now()
	inner, err := m.inner.Stream(ctx, req)
	if err != nil {
		m.observe(req.Model, start, err)
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		var streamErr error
		for chunk := range inner {
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			if chunk.Usage != nil {
				m.observeUsage(*chunk.Usage)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				m.observe(req.Model, start, ctx.Err())
				return
			}
		}
		m.observe(req.Model, start, streamErr)
	}()
	return out, nil
}

func (m *measuredProvider) observe(model string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var perr *ProviderError
		if errors.As(err, &perr) {
			outcome = string(perr.Kind)
		}
	}
	requestsTotal.WithLabelValues(m.inner.Name(), model, outcome).Inc()
	requestDuration.WithLabelValues(m.inner.Name(), model).Observe(time.Since(start).Seconds())
}

func (m *measuredProvider) observeUsage(usage Usage) {
	tokensTotal.WithLabelValues(m.inner.Name(), "input").Add(float64(usage.InputTokens))
	tokensTotal.WithLabelValues(m.inner.Name(), "output").Add(float64(usage.OutputTokens))
}
