// Package metrics owns the Prometheus collectors for migrations, tenant
// scopes, introspection and the admin HTTP API. Every method is safe on a nil
// *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schoolhub"

type Metrics struct {
	registry *prometheus.Registry

	MigrationsTotal     *prometheus.CounterVec
	MigrationDuration   *prometheus.HistogramVec
	TenantScopes        *prometheus.CounterVec
	IntrospectionErrors *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MigrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Migration files processed, by outcome.",
		}, []string{"outcome"}),
		MigrationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Execution time of migration files.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"outcome"}),
		TenantScopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_scope_total",
			Help:      "Tenant-scoped connection checkouts, by result.",
		}, []string{"result"}),
		IntrospectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "introspection_errors_total",
			Help:      "Catalog query failures, by operation.",
		}, []string{"operation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin API requests.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.MigrationsTotal,
		m.MigrationDuration,
		m.TenantScopes,
		m.IntrospectionErrors,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveMigration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.MigrationsTotal.WithLabelValues(outcome).Inc()
	m.MigrationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveScope(result string) {
	if m == nil {
		return
	}
	m.TenantScopes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveIntrospectionError(op string) {
	if m == nil {
		return
	}
	m.IntrospectionErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
