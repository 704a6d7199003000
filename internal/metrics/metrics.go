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

	// RunsTotal counts optimization runs by terminal status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimization runs by terminal status."},
		[]string{"status"},
	)
	// RunDuration tracks end-to-end run durations in seconds.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimizer_run_duration_seconds", Help: "Run duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900}},
	)
	// RoutesAssigned counts routes assigned across runs.
	RoutesAssigned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_routes_assigned_total", Help: "Routes assigned across runs."},
	)
	// RoutesUnassigned counts unassigned routes by dominant reason.
	RoutesUnassigned = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_routes_unassigned_total", Help: "Unassigned routes by reason."},
		[]string{"reason"},
	)
	// Relocations counts committed relocations across runs.
	Relocations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_relocations_total", Help: "Relocations committed across runs."},
	)
	// Services counts scheduled services across runs.
	Services = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_services_total", Help: "Services scheduled across runs."},
	)
)

var regOnce sync.Once

// RegisterDefault registers collectors to the registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RunsTotal)
		Registry.MustRegister(RunDuration)
		Registry.MustRegister(RoutesAssigned)
		Registry.MustRegister(RoutesUnassigned)
		Registry.MustRegister(Relocations)
		Registry.MustRegister(Services)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
