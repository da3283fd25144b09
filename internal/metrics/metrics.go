package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/court-capture/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics

	TaskPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "capture",
		Name:      "task_pickup_latency_seconds",
		Help:      "Time from task enqueue to a worker dequeuing it.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	JobExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "capture",
		Name:      "job_execution_duration_seconds",
		Help:      "Wall time of a capture job from start to terminal state.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
	}, []string{"capture_type", "status"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "capture",
		Name:      "worker_jobs_in_flight",
		Help:      "Number of capture jobs currently being executed by the worker.",
	})

	JobsFinalizedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "jobs_finalized_total",
		Help:      "Total capture jobs that reached a terminal state.",
	}, []string{"capture_type", "status"})

	AttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "attempts_total",
		Help:      "Total attempts recorded, by outcome.",
	}, []string{"capture_type", "outcome"})

	ItemsCapturedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "items_captured_total",
		Help:      "Items returned by court APIs and handed to persistence.",
	}, []string{"capture_type"})

	// Court API metrics

	PagesFetchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "pages_fetched_total",
		Help:      "Result pages fetched from court APIs.",
	}, []string{"capture_type"})

	CourtRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "court_requests_total",
		Help:      "Requests sent to court APIs, by court and result.",
	}, []string{"court", "result"})

	// Dispatcher metrics

	SchedulesDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "schedules_dispatched_total",
		Help:      "Schedule runs handed to the queue by the dispatcher.",
	})

	// Reaper metrics

	ReaperRescuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "reaper_rescued_total",
		Help:      "Total stale jobs handled by the reaper.",
	}, []string{"action"})

	ReaperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "capture",
		Name:      "reaper_cycle_duration_seconds",
		Help:      "Time taken for one reaper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// Worker lifecycle

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "capture",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times the worker has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "capture",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "capture",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		TaskPickupLatency,
		JobExecutionDuration,
		JobsInFlight,
		JobsFinalizedTotal,
		AttemptsTotal,
		ItemsCapturedTotal,
		PagesFetchedTotal,
		CourtRequestsTotal,
		SchedulesDispatchedTotal,
		ReaperRescuedTotal,
		ReaperCycleDuration,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus the liveness and readiness probes.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
