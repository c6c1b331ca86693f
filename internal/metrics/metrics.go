package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PlannedLocations counts locations committed to routes.
	PlannedLocations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "plan_locations_planned_total", Help: "Locations committed to routes by planning passes."},
	)
	// UnplannedLocations counts locations left unplanned at horizon end.
	UnplannedLocations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "plan_locations_unplanned_total", Help: "Locations still unplanned when a horizon pass finished."},
	)
	// PlanPassDuration tracks horizon pass wall time in seconds.
	PlanPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_pass_duration_seconds", Help: "Horizon pass duration in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}},
	)
	// EstimatorSignals counts travel-model quality signals by reason.
	EstimatorSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "traveltime_quality_signals_total", Help: "Travel-time estimator quality signals by reason."},
		[]string{"reason"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds.
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlannedLocations)
		Registry.MustRegister(UnplannedLocations)
		Registry.MustRegister(PlanPassDuration)
		Registry.MustRegister(EstimatorSignals)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
