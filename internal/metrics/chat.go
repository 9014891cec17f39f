package metrics

import "github.com/prometheus/client_golang/prometheus"

// Chat Prometheus metrics.
var (
	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "chat_requests_total",
			Help:      "Total number of chat requests",
		},
		[]string{"outcome"}, // "llm" / "fallback" / "quota"
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "llm_requests_total",
			Help:      "Total number of LLM provider calls",
		},
		[]string{"model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragchat",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM provider call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90},
		},
		[]string{"model"},
	)

	LLMRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "llm_retries_total",
			Help:      "Total LLM rate-limit retries",
		},
		[]string{"reason"}, // "rate_limited" / "exhausted"
	)

	StreamSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "stream_sessions_total",
			Help:      "Streaming sessions by admission outcome",
		},
		[]string{"outcome"}, // "admitted" / "rejected" / "cancelled"
	)

	StreamTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "stream_tokens_total",
			Help:      "Total token events emitted to stream clients",
		},
	)

	StreamHeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "stream_heartbeats_total",
			Help:      "Total keep-alive events emitted to stream clients",
		},
	)
)

var chatMetricsRegistered bool

// RegisterChatMetrics registers chat Prometheus metrics. Must be called once from main.
func RegisterChatMetrics() {
	if chatMetricsRegistered {
		return
	}
	prometheus.MustRegister(ChatRequestsTotal)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(LLMRetriesTotal)
	prometheus.MustRegister(StreamSessionsTotal)
	prometheus.MustRegister(StreamTokensTotal)
	prometheus.MustRegister(StreamHeartbeatsTotal)
	chatMetricsRegistered = true
}
