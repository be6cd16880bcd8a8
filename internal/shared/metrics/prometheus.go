package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	pipelinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_pipelines_total",
			Help: "Total number of completed triage pipelines",
		},
		[]string{"outcome"},
	)

	unitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_unit_duration_seconds",
			Help:    "Decision unit execution duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"unit"},
	)

	emergenciesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_emergencies_total",
			Help: "Total number of emergency outcomes",
		},
	)

	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_escalations_total",
			Help: "Total number of doctor escalations",
		},
		[]string{"urgency"},
	)

	referenceGapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_reference_gaps_total",
			Help: "Total number of recovered reference-data gaps",
		},
		[]string{"table"},
	)
)

// RecordPipeline records a completed pipeline by outcome kind.
func RecordPipeline(outcome string) {
	pipelinesTotal.WithLabelValues(outcome).Inc()
}

// RecordUnitDuration records how long a decision unit ran.
func RecordUnitDuration(unit string, d time.Duration) {
	unitDuration.WithLabelValues(unit).Observe(d.Seconds())
}

// RecordEmergency counts an emergency outcome.
func RecordEmergency() {
	emergenciesTotal.Inc()
}

// RecordEscalation counts a doctor escalation at the given urgency.
func RecordEscalation(urgency string) {
	escalationsTotal.WithLabelValues(urgency).Inc()
}

// RecordReferenceGap counts a recovered reference-data gap.
func RecordReferenceGap(table string) {
	referenceGapsTotal.WithLabelValues(table).Inc()
}

// Middleware instruments HTTP handlers
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// Handler returns the Prometheus metrics endpoint handler
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
