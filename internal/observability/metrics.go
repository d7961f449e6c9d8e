package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	stageOutcomesTotal    *prometheus.CounterVec
	extractionMethodTotal *prometheus.CounterVec
	validationOutcomes    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the API surface
// and the validation engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nalar",
			Name:      "api_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nalar",
			Name:      "api_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.025, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 60.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nalar",
			Name:      "api_errors_total",
			Help:      "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		stageOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nalar",
			Name:      "validation_stage_outcomes_total",
			Help:      "Validation stage results by stage name and status.",
		}, []string{"stage", "status"})

		extractionMethodTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nalar",
			Name:      "extraction_methods_total",
			Help:      "Which strategy of the extraction cascade produced each result.",
		}, []string{"method"})

		validationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nalar",
			Name:      "validation_runs_total",
			Help:      "Completed validation runs by overall outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			stageOutcomesTotal,
			extractionMethodTotal,
			validationOutcomes,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// StageOutcomes exposes the per-stage result counter.
func StageOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return stageOutcomesTotal
}

// ExtractionMethods exposes the extraction strategy counter.
func ExtractionMethods() *prometheus.CounterVec {
	RegisterMetrics()
	return extractionMethodTotal
}

// ValidationRuns exposes the overall validation outcome counter.
func ValidationRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return validationOutcomes
}
