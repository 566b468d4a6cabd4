package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OracleCalls counts tour oracle calls by solving method (trivial, exact, heuristic, fallback)
	OracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tour_oracle_calls_total", Help: "Tour oracle calls by method."},
		[]string{"method"},
	)
	// OracleDuration records oracle wall time in seconds
	OracleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "tour_oracle_duration_seconds", Help: "Tour oracle duration in seconds.", Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5}},
		[]string{"method"},
	)
	// OracleCache counts memo lookups by outcome (hit, miss)
	OracleCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tour_oracle_cache_total", Help: "Tour oracle cache lookups by outcome."},
		[]string{"outcome"},
	)
	// OracleSearch counts heuristic destroy-and-repair operator selections
	OracleSearch = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tour_oracle_search_rounds_total", Help: "Heuristic search rounds by operator."},
		[]string{"operator"},
	)

	// PlanDuration records end-to-end partition planning time in seconds
	PlanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "plan_duration_seconds", Help: "Partition plan duration in seconds.", Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120}},
		[]string{"outcome"},
	)
	// PlanMoves counts waypoint moves accepted per phase (enforce, optimize, refine)
	PlanMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_moves_total", Help: "Accepted waypoint moves by phase."},
		[]string{"phase"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OracleCalls)
		Registry.MustRegister(OracleDuration)
		Registry.MustRegister(OracleCache)
		Registry.MustRegister(OracleSearch)
		Registry.MustRegister(PlanDuration)
		Registry.MustRegister(PlanMoves)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
