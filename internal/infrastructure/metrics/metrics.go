package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pricepilot/backend/internal/domain"
)

const providerOK = "ok"

// Metrics records pipeline observations as Prometheus collectors on a
// dedicated registry and keeps plain counters for the stats endpoint.
type Metrics struct {
	Registry *prometheus.Registry

	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	aiBatches        *prometheus.CounterVec
	searches         *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	stageCandidates  *prometheus.HistogramVec

	totalSearches     atomic.Int64
	basicSearches     atomic.Int64
	degradedSearches  atomic.Int64
	failedSearches    atomic.Int64
	rejectedRequests  atomic.Int64
	aiBatchesFailed   atomic.Int64
	aiBatchesComplete atomic.Int64

	mu               sync.Mutex
	providerFailures map[string]int64
}

// New constructs and registers all collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()

	providerCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricepilot_provider_calls_total",
			Help: "Provider calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	providerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricepilot_provider_call_duration_seconds",
			Help:    "Provider call latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
	aiBatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricepilot_ai_batches_total",
			Help: "AI validation batches by outcome.",
		},
		[]string{"outcome"},
	)
	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricepilot_searches_total",
			Help: "Searches by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricepilot_search_duration_seconds",
			Help:    "End-to-end search latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 6, 8, 10, 15},
		},
		[]string{"mode"},
	)
	stageCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricepilot_stage_candidates",
			Help:    "Candidates leaving each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
		[]string{"stage"},
	)

	registry.MustRegister(providerCalls, providerDuration, aiBatches, searches, searchDuration, stageCandidates)

	return &Metrics{
		Registry:         registry,
		providerCalls:    providerCalls,
		providerDuration: providerDuration,
		aiBatches:        aiBatches,
		searches:         searches,
		searchDuration:   searchDuration,
		stageCandidates:  stageCandidates,
		providerFailures: make(map[string]int64),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveProviderCall records one provider call. Any outcome other than
// "ok" is a failure kind.
func (m *Metrics) ObserveProviderCall(provider domain.ProviderName, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(string(provider), outcome).Inc()
	m.providerDuration.WithLabelValues(string(provider)).Observe(duration.Seconds())

	if outcome != providerOK {
		m.mu.Lock()
		m.providerFailures[outcome]++
		m.mu.Unlock()
	}
}

// ObserveAIBatch records the outcome of one validation batch
func (m *Metrics) ObserveAIBatch(outcome string) {
	if m == nil {
		return
	}
	m.aiBatches.WithLabelValues(outcome).Inc()
	if outcome == "validated" {
		m.aiBatchesComplete.Add(1)
	} else {
		m.aiBatchesFailed.Add(1)
	}
}

// ObserveSearch records a finished or rejected search
func (m *Metrics) ObserveSearch(mode domain.SearchMode, outcome string, duration time.Duration, stats domain.PipelineStats) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(string(mode), outcome).Inc()

	if outcome == domain.OutcomeRejected {
		m.rejectedRequests.Add(1)
		return
	}

	m.searchDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())
	m.stageCandidates.WithLabelValues("raw").Observe(float64(stats.RawProducts))
	m.stageCandidates.WithLabelValues("deduplicated").Observe(float64(stats.AfterDeduplication))
	m.stageCandidates.WithLabelValues("final").Observe(float64(stats.FinalResults))
	if mode == domain.SearchModeAI {
		m.stageCandidates.WithLabelValues("ai_validated").Observe(float64(stats.AIValidated))
	}

	m.totalSearches.Add(1)
	if mode == domain.SearchModeBasic {
		m.basicSearches.Add(1)
	}
	switch outcome {
	case domain.OutcomeDegraded:
		m.degradedSearches.Add(1)
	case domain.OutcomeFailed:
		m.failedSearches.Add(1)
	}
}

// Snapshot returns the current counter values
func (m *Metrics) Snapshot() domain.StatsSnapshot {
	m.mu.Lock()
	failures := make(map[string]int64, len(m.providerFailures))
	for kind, n := range m.providerFailures {
		failures[kind] = n
	}
	m.mu.Unlock()

	return domain.StatsSnapshot{
		TotalSearches:     m.totalSearches.Load(),
		BasicSearches:     m.basicSearches.Load(),
		DegradedSearches:  m.degradedSearches.Load(),
		FailedSearches:    m.failedSearches.Load(),
		RejectedRequests:  m.rejectedRequests.Load(),
		ProviderFailures:  failures,
		AIBatchesFailed:   m.aiBatchesFailed.Load(),
		AIBatchesComplete: m.aiBatchesComplete.Load(),
	}
}
