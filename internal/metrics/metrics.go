package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambot_messages_received_total",
			Help: "Total inbound chat messages by platform",
		},
		[]string{"platform"},
	)

	ResponsesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambot_responses_total",
			Help: "Total responses produced, by routing path",
		},
		[]string{"path"}, // command, intent, llm, probability
	)

	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streambot_llm_request_duration_seconds",
			Help:    "Latency of completed Ollama requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	LLMFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambot_llm_failures_total",
			Help: "LLM requests that exhausted retries, by failure class",
		},
		[]string{"class"}, // timeout, connection, malformed
	)

	MemoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambot_memory_operations_total",
			Help: "Vector memory operations by kind and outcome",
		},
		[]string{"op", "outcome"}, // store/search/import x ok/skip/error
	)

	ActiveConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambot_active_conversations",
			Help: "Number of conversation history buffers in memory",
		},
	)
)
