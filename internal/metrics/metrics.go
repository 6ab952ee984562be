// Package metrics exposes Prometheus collectors for the record store.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	storageOps      *prometheus.CounterVec
	storageDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	operations      *prometheus.CounterVec
}

// New creates collectors prefixed with namespace on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storageOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage adapter calls",
			},
			[]string{"operation", "status"},
		),
		storageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_operation_duration_seconds",
				Help:      "Duration of storage adapter calls in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entity_operations_total",
				Help:      "Entity operations by operation, entity and outcome",
			},
			[]string{"operation", "entity", "status"},
		),
	}

	m.registry.MustRegister(
		m.storageOps,
		m.storageDuration,
		m.cacheLookups,
		m.operations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStorage records one storage call started at start.
func (m *Metrics) ObserveStorage(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.storageOps.WithLabelValues(op, status(err)).Inc()
	m.storageDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CacheHit records a hit on the named cache.
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a miss on the named cache.
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(cache, "miss").Inc()
}

// ObserveOperation records the outcome of an entity operation.
func (m *Metrics) ObserveOperation(op, entity string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, entity, status(err)).Inc()
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
