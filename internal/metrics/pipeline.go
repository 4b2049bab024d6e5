package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "searchscout"

// Pipeline Prometheus metrics.
var (
	ExtractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_total",
			Help:      "Total page extractions by outcome",
		},
		[]string{"outcome"}, // "ok" / "fallback" / "failed"
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Page fetch and extraction duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Total language model requests",
		},
		[]string{"operation", "status"},
	)

	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "Language model request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_total",
			Help:      "Total language model tokens consumed",
		},
		[]string{"operation", "type"},
	)

	AIBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ai_budget_tokens_remaining",
			Help:      "Tokens left in the language model budget (-1 = unlimited)",
		},
		[]string{"provider", "period"}, // "daily" / "monthly"
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate gate admission decisions",
		},
		[]string{"result"}, // "allowed" / "denied" / "store_error"
	)

	EnrichedResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enriched_results_total",
			Help:      "Total enriched results produced",
		},
		[]string{"mode"}, // "batch" / "stream"
	)

	DedupDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_dropped_total",
			Help:      "Results dropped as semantic duplicates",
		},
	)
)

var registerPipeline sync.Once

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Safe to call more than once.
func RegisterPipelineMetrics() {
	registerPipeline.Do(func() {
		prometheus.MustRegister(
			ExtractionTotal,
			ExtractionDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AITokensTotal,
			AIBudgetTokensRemaining,
			EmbeddingCacheTotal,
			RateLimitDecisionsTotal,
			EnrichedResultsTotal,
			DedupDroppedTotal,
		)
	})
}
