// Package metrics provides Prometheus metrics for monitoring the roadmap pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Roadmap pipeline metrics
var (
	// generationsTotal records roadmap generation attempts by outcome.
	// Labels:
	//   - mode: "blocking" or "stream"
	//   - outcome: "success" or an error kind (e.g., "UPSTREAM_TIMEOUT")
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spm_roadmap_generations_total",
			Help: "Total number of roadmap generation attempts",
		},
		[]string{"mode", "outcome"},
	)

	// llmRequestsTotal records LLM provider calls.
	// Labels:
	//   - mode: "blocking" or "stream"
	//   - status: "success", "failed", "timeout"
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spm_llm_requests_total",
			Help: "Total number of LLM provider requests",
		},
		[]string{"mode", "status"},
	)

	// llmRequestDuration records LLM call latency.
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 20s, 30s, 60s, 120s, 180s
	llmRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spm_llm_request_duration_seconds",
			Help:    "Duration of LLM provider requests in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
		},
		[]string{"mode"},
	)

	// persistedRowsTotal records rows written by the roadmap persistor.
	// Labels:
	//   - table: "modules" or "tasks"
	persistedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spm_roadmap_persisted_rows_total",
			Help: "Total number of roadmap rows inserted",
		},
		[]string{"table"},
	)

	// streamEventsTotal records events emitted on the streaming surface.
	// Labels:
	//   - type: "status", "chunk", "done", "error"
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spm_stream_events_total",
			Help: "Total number of roadmap stream events emitted",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal)
	prometheus.MustRegister(llmRequestsTotal)
	prometheus.MustRegister(llmRequestDuration)
	prometheus.MustRegister(persistedRowsTotal)
	prometheus.MustRegister(streamEventsTotal)
}

// RecordGeneration records the outcome of one roadmap generation.
func RecordGeneration(mode, outcome string) {
	generationsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordLLMRequest records one LLM request and its duration in seconds.
func RecordLLMRequest(mode, status string, durationSeconds float64) {
	llmRequestsTotal.WithLabelValues(mode, status).Inc()
	llmRequestDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordPersistedRow records one inserted row for the given table.
func RecordPersistedRow(table string) {
	persistedRowsTotal.WithLabelValues(table).Inc()
}

// RecordStreamEvent records one emitted stream event.
func RecordStreamEvent(eventType string) {
	streamEventsTotal.WithLabelValues(eventType).Inc()
}
