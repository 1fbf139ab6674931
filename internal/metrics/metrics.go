// Package metrics holds the Prometheus collectors for intake.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handoff outcomes.
const (
	OutcomeExtracted  = "extracted"
	OutcomeInferred   = "inferred"
	OutcomeRejected   = "rejected"
	OutcomeDuplicate  = "duplicate"
	OutcomeDispatched = "dispatched"
)

// Collector holds all metrics for one process. Each Collector owns its
// registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	Turns        *prometheus.CounterVec
	Handoffs     *prometheus.CounterVec
	Dispatches   *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a collector under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	turns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Agent turns handled, by transport and result",
		},
		[]string{"transport", "result"},
	)

	handoffs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Handoff pipeline outcomes",
		},
		[]string{"outcome"},
	)

	dispatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by channel and status",
		},
		[]string{"channel", "status"},
	)

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(turns, handoffs, dispatches, httpRequests, httpDuration)

	return &Collector{
		registry:     registry,
		Turns:        turns,
		Handoffs:     handoffs,
		Dispatches:   dispatches,
		HTTPRequests: httpRequests,
		HTTPDuration: httpDuration,
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordTurn(transport string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Turns.WithLabelValues(transport, result).Inc()
}

func (c *Collector) RecordHandoff(outcome string) {
	c.Handoffs.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordDispatch(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Dispatches.WithLabelValues(channel, status).Inc()
}

func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
