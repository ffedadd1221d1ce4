package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// collaboratorCalls counts external calls by service and outcome
	collaboratorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itinerary_collaborator_calls_total",
		Help: "Total external collaborator calls by service and outcome",
	}, []string{"service", "outcome"})

	// collaboratorDuration tracks external call latency
	collaboratorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itinerary_collaborator_call_duration_seconds",
		Help:    "External collaborator call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"service"})

	optimizerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itinerary_optimizer_runs_total",
		Help: "Total path optimizer runs by outcome",
	}, []string{"outcome"})

	placeCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itinerary_place_cache_total",
		Help: "Place lookup cache hits and misses",
	}, []string{"result"})
)

// Call outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// ObserveCall records one attempt against an external collaborator
func ObserveCall(service, outcome string, elapsed time.Duration) {
	collaboratorCalls.WithLabelValues(service, outcome).Inc()
	collaboratorDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// ObserveOptimizer records the outcome of a solver run
func ObserveOptimizer(outcome string) {
	optimizerRuns.WithLabelValues(outcome).Inc()
}

// ObservePlaceCache records a place cache hit or miss
func ObservePlaceCache(hit bool) {
	if hit {
		placeCache.WithLabelValues("hit").Inc()
		return
	}
	placeCache.WithLabelValues("miss").Inc()
}
