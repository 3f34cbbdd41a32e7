// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "franchise"

// Failure reasons recorded by OrderRejected.
const (
	ReasonValidation = "validation"
	ReasonStock      = "insufficient_stock"
	ReasonNotFound   = "product_not_found"
	ReasonStorage    = "storage"
	ReasonCanceled   = "canceled"
)

type Metrics struct {
	registry *prometheus.Registry

	ordersPlaced      prometheus.Counter
	ordersRejected    *prometheus.CounterVec
	placementDuration prometheus.Histogram
	statusUpdates     *prometheus.CounterVec
	httpRequests      *prometheus.HistogramVec
}

// New registers every collector on a private registry so that several
// instances can coexist in one test binary.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders committed.",
		}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Order placements that did not commit, by reason.",
		}, []string{"reason"}),
		placementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_placement_duration_seconds",
			Help:      "Wall time of the placement transaction including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_updates_total",
			Help:      "Order status writes, by new status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersPlaced,
		m.ordersRejected,
		m.placementDuration,
		m.statusUpdates,
		m.httpRequests,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OrderPlaced(d time.Duration) {
	m.ordersPlaced.Inc()
	m.placementDuration.Observe(d.Seconds())
}

func (m *Metrics) OrderRejected(reason string, d time.Duration) {
	m.ordersRejected.WithLabelValues(reason).Inc()
	m.placementDuration.Observe(d.Seconds())
}

func (m *Metrics) StatusUpdated(status string) {
	m.statusUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Observe(d.Seconds())
}
