// Package metrics records Prometheus metrics for rotation steps.
//
// A Lambda invocation is too short-lived to be scraped, so metrics live in a
// private registry and are pushed to a Pushgateway at the end of each
// invocation when one is configured.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Probe results recorded by ProbeResult.
const (
	ProbeAuthenticated = "authenticated"
	ProbeUnauthorized  = "unauthorized"
	ProbeRejected      = "rejected"
)

// Metrics holds the rotation collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	stepTotal          *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	keysEvicted        prometheus.Counter
	activeKeyEvictions prometheus.Counter
	probeTotal         *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyrotator_step_total",
				Help: "Total number of rotation step invocations by outcome",
			},
			[]string{"step", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyrotator_step_duration_seconds",
				Help:    "Duration of rotation step invocations in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"step"},
		),
		keysEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrotator_keys_evicted_total",
			Help: "Access keys deleted to make room for a new key",
		}),
		activeKeyEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrotator_active_key_evictions_total",
			Help: "Evicted access keys that were still recorded as the active key",
		}),
		probeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyrotator_probe_total",
				Help: "Authentication probes of pending access keys by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.stepTotal,
		m.stepDuration,
		m.keysEvicted,
		m.activeKeyEvictions,
		m.probeTotal,
	)
	return m
}

// Registry exposes the registry for scraping or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordStep records one step invocation.
func (m *Metrics) RecordStep(step, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepTotal.WithLabelValues(step, outcome).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// KeyEvicted records the deletion of the oldest key. active reports whether
// the evicted key was the one the secret still names as active.
func (m *Metrics) KeyEvicted(active bool) {
	if m == nil {
		return
	}
	m.keysEvicted.Inc()
	if active {
		m.activeKeyEvictions.Inc()
	}
}

// ProbeResult records the outcome of a test-step probe.
func (m *Metrics) ProbeResult(result string) {
	if m == nil {
		return
	}
	m.probeTotal.WithLabelValues(result).Inc()
}

// Push sends the registry to a Pushgateway under the given job name.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
