package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concept_resolution_duration_seconds",
			Help:    "Query resolution duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"route"},
	)

	ResolutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_resolution_total",
			Help: "Total number of queries resolved",
		},
		[]string{"status"},
	)

	MatchCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concept_resolution_match_count",
			Help:    "Number of resolved matches per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
		[]string{"category"},
	)

	AmbiguityDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concept_resolution_ambiguity_total",
			Help: "Total queries that produced ambiguous matches",
		},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concept_resolution_confidence_score",
			Help:    "Overall confidence scores of resolved queries",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	EmbeddingBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concept_embedding_batch_size",
			Help:    "Number of texts sent to the embedding backend per batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	CatalogFieldsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concept_catalog_fields_ingested_total",
			Help: "Total catalog fields ingested into the vector store",
		},
	)
)

func Init() {
	prometheus.MustRegister(ResolutionDuration)
	prometheus.MustRegister(ResolutionTotal)
	prometheus.MustRegister(MatchCount)
	prometheus.MustRegister(AmbiguityDetected)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(EmbeddingBatchSize)
	prometheus.MustRegister(CatalogFieldsIngested)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
