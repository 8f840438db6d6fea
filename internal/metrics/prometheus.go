package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_request_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportdesk_pipeline_duration_seconds",
			Help:    "End-to-end pipeline duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportdesk_stage_duration_seconds",
			Help:    "Per-stage duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"stage"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportdesk_cache_hits_total",
			Help: "Total response cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportdesk_cache_misses_total",
			Help: "Total response cache misses",
		},
	)

	EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_escalations_total",
			Help: "Total escalations by reason",
		},
		[]string{"reason"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportdesk_confidence_score",
			Help:    "Confidence scores of completed runs",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportdesk_documents_ingested_total",
			Help: "Total documents ingested across clients",
		},
	)

	AgentsAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supportdesk_agents_available",
			Help: "Human agents currently available",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestTotal)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(AgentsAvailable)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
