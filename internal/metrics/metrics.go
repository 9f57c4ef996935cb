// Package metrics exposes Prometheus instrumentation for the proxy.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	requestsTotal         *prometheus.CounterVec
	requestDuration       *prometheus.HistogramVec
	introspectionsTotal   *prometheus.CounterVec
	introspectionDuration *prometheus.HistogramVec
	cacheEventsTotal      *prometheus.CounterVec
)

// Introspection outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Cache event labels.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStore = "store"
)

// Register initializes the proxy metrics and returns the handler for /metrics.
func Register(registry prometheus.Registerer) (http.Handler, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total requests handled by the proxy",
		}, []string{"method", "status"})

		requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxy_request_duration_seconds",
			Help:    "Proxy request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"})

		introspectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "introspection_requests_total",
			Help: "Token introspections by resource and outcome",
		}, []string{"resource", "outcome"})

		introspectionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "introspection_duration_seconds",
			Help:    "Token introspection latency by resource",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource"})

		cacheEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "introspection_cache_events_total",
			Help: "Introspection cache events",
		}, []string{"event"})

		for _, c := range []prometheus.Collector{
			requestsTotal,
			requestDuration,
			introspectionsTotal,
			introspectionDuration,
			cacheEventsTotal,
		} {
			if err := registerCollector(registry, c); err != nil {
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}

	return promhttp.Handler(), nil
}

// registerCollector registers on the given registry, tolerating duplicates.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// RecordRequest counts a handled request. No-op until Register is called.
func RecordRequest(method string, status int, duration time.Duration) {
	if requestsTotal != nil {
		requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
	if requestDuration != nil {
		requestDuration.WithLabelValues(method).Observe(duration.Seconds())
	}
}

// RecordIntrospection counts one introspection call and its latency.
func RecordIntrospection(resource, outcome string, duration time.Duration) {
	if introspectionsTotal != nil {
		introspectionsTotal.WithLabelValues(resource, outcome).Inc()
	}
	if introspectionDuration != nil {
		introspectionDuration.WithLabelValues(resource).Observe(duration.Seconds())
	}
}

// RecordCacheEvent counts an introspection cache hit, miss or store.
func RecordCacheEvent(event string) {
	if cacheEventsTotal != nil {
		cacheEventsTotal.WithLabelValues(event).Inc()
	}
}
