// Package metrics provides Prometheus metrics for socrates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMRequests counts gateway calls by provider and outcome (text, json, null, error).
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socrates",
			Name:      "llm_requests_total",
			Help:      "Total number of LLM gateway requests",
		},
		[]string{"provider", "outcome"},
	)

	// LLMDuration measures gateway round-trip time.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "socrates",
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM gateway requests in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// ArticlesTotal counts articles seen by ingestion, by stage.
	ArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socrates",
			Name:      "ingest_articles_total",
			Help:      "Articles processed by ingestion stage (candidate, extracted, dropped, scored, stored, duplicate)",
		},
		[]string{"stage"},
	)

	// IngestRuns counts ingestion runs by status.
	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socrates",
			Name:      "ingest_runs_total",
			Help:      "Total number of ingestion runs",
		},
		[]string{"status"},
	)

	// DigestRuns counts digest assembly runs by status.
	DigestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socrates",
			Name:      "digest_runs_total",
			Help:      "Total number of digest runs",
		},
		[]string{"status"},
	)

	// ChatTurns counts chat turns by result code ("ok" or an error code).
	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socrates",
			Name:      "chat_turns_total",
			Help:      "Total number of chat turns",
		},
		[]string{"code"},
	)
)

// RecordLLMRequest records one gateway call.
func RecordLLMRequest(provider, outcome string, duration float64) {
	LLMRequests.WithLabelValues(provider, outcome).Inc()
	LLMDuration.WithLabelValues(provider).Observe(duration)
}

// RecordArticles adds n articles to the given ingestion stage.
func RecordArticles(stage string, n int) {
	if n <= 0 {
		return
	}
	ArticlesTotal.WithLabelValues(stage).Add(float64(n))
}

// RecordIngestRun records an ingestion run outcome.
func RecordIngestRun(status string) {
	IngestRuns.WithLabelValues(status).Inc()
}

// RecordDigestRun records a digest run outcome.
func RecordDigestRun(status string) {
	DigestRuns.WithLabelValues(status).Inc()
}

// RecordChatTurn records a chat turn outcome.
func RecordChatTurn(code string) {
	ChatTurns.WithLabelValues(code).Inc()
}
