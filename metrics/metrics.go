// Package metrics exposes Prometheus collectors for provider operations and
// path cache lookups, and serves them on a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/content-service-backend/interfaces"
)

// MetricsServer owns a registry and the HTTP server publishing it.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	operations  *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	cacheLookup *prometheus.CounterVec
}

// New registers the collectors under namespace. addr may be empty when the
// collectors are only observed in-process.
func New(namespace, addr string) (*MetricsServer, error) {
	m := &MetricsServer{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_operations_total",
			Help:      "Storage provider operations by provider type, operation and outcome.",
		}, []string{"provider", "operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_operation_duration_seconds",
			Help:      "Storage provider operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		cacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_cache_lookups_total",
			Help:      "Path cache lookups by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		m.operations,
		m.durations,
		m.cacheLookup,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsServer) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

// ProviderOperation records one provider call.
func (m *MetricsServer) ProviderOperation(providerType, operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if interfaces.StatusHint(err) == http.StatusNotFound {
			status = "not_found"
		}
	}
	m.operations.WithLabelValues(providerType, operation, status).Inc()
	m.durations.WithLabelValues(providerType, operation).Observe(duration.Seconds())
}

// CacheLookup records one path cache read.
func (m *MetricsServer) CacheLookup(partition string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookup.WithLabelValues(result).Inc()
}
