package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConfidenceScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faqminer_confidence_score",
			Help:    "Confidence scores assigned at ingestion",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 100},
		},
		[]string{"recommendation"},
	)

	EntriesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_entries_ingested_total",
			Help: "Total candidate entries ingested",
		},
		[]string{"status"},
	)

	FeedbackEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_feedback_events_total",
			Help: "Total feedback events processed",
		},
		[]string{"type", "sentiment"},
	)

	Demotions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "faqminer_demotions_total",
			Help: "Published entries moved back to review by feedback",
		},
	)

	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_alerts_raised_total",
			Help: "Total alerts raised",
		},
		[]string{"type", "severity"},
	)

	ActiveAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "faqminer_active_alerts",
			Help: "Unresolved alerts in the alert store",
		},
	)

	ComponentHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "faqminer_component_health",
			Help: "Component health: 0 healthy, 1 degraded, 2 critical",
		},
		[]string{"component"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_notifications_total",
			Help: "Alert notifications dispatched",
		},
		[]string{"status"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faqminer_task_duration_seconds",
			Help:    "Scheduled task duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"task"},
	)

	TaskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_task_runs_total",
			Help: "Scheduled task runs by outcome",
		},
		[]string{"task", "outcome"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	EmbeddingTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_embedding_tokens_used",
			Help: "Total embedding tokens used",
		},
		[]string{"model"},
	)

	PatternGraphWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faqminer_pattern_graph_writes_total",
			Help: "Pattern graph write attempts",
		},
		[]string{"status"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(ConfidenceScore)
		prometheus.MustRegister(EntriesIngested)
		prometheus.MustRegister(FeedbackEvents)
		prometheus.MustRegister(Demotions)
		prometheus.MustRegister(AlertsRaised)
		prometheus.MustRegister(ActiveAlerts)
		prometheus.MustRegister(ComponentHealth)
		prometheus.MustRegister(NotificationsSent)
		prometheus.MustRegister(TaskDuration)
		prometheus.MustRegister(TaskRuns)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(EmbeddingTokensUsed)
		prometheus.MustRegister(PatternGraphWrites)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
