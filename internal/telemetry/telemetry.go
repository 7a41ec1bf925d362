// Package telemetry holds the Prometheus instruments shared by the engine.
// Every New call creates an independent registry so tests and multiple
// engines never collide on collector registration.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded on the upstream request counter
const (
	OutcomeSuccess   = "success"
	OutcomeAuth      = "auth"
	OutcomeNotFound  = "not_found"
	OutcomeRetryable = "retryable"
	OutcomeError     = "error"
)

// Cache lookup results
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics bundles the engine's collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	SubqueryFailures *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamify_upstream_requests_total",
			Help: "Upstream API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamify_upstream_request_duration_seconds",
			Help:    "Upstream API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamify_cache_lookups_total",
			Help: "Result cache lookups by operation and result.",
		}, []string{"operation", "result"}),
		SubqueryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamify_subquery_failures_total",
			Help: "Statistics sub-queries replaced by their default value.",
		}, []string{"subquery"}),
	}

	m.registry.MustRegister(m.UpstreamRequests, m.UpstreamDuration, m.CacheLookups, m.SubqueryFailures)
	return m
}

// ObserveRequest records one completed upstream request
func (m *Metrics) ObserveRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveCache records a cache hit or miss for an operation
func (m *Metrics) ObserveCache(operation string, hit bool) {
	if m == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.CacheLookups.WithLabelValues(operation, result).Inc()
}

// ObserveSubqueryFailure counts a sub-query that fell back to its default
func (m *Metrics) ObserveSubqueryFailure(subquery string) {
	if m == nil {
		return
	}
	m.SubqueryFailures.WithLabelValues(subquery).Inc()
}

// WriteTextfile dumps the current values in the node-exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
