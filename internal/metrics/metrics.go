package metrics

import (
	"expvar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// expvar 计数器（/debug/vars）
var (
	StreamMessages       = expvar.NewInt("stream_messages")
	StreamDecodeFailures = expvar.NewInt("stream_decode_failures")
	StaleResults         = expvar.NewInt("stale_results")
	AuthFailures         = expvar.NewInt("auth_failures")
)

const namespace = "tradedash"

// prometheus 指标（/metrics）
var (
	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Coordinator state transitions by target state.",
	}, []string{"to"})

	streamMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_messages_total",
		Help:      "Quote deltas decoded from the stream.",
	})

	streamDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_decode_failures_total",
		Help:      "Stream messages dropped because they could not be decoded.",
	})

	staleResults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_results_total",
		Help:      "Async results discarded because their session epoch was no longer current.",
	})

	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Credential rejections by reporting component.",
	}, []string{"source"})

	orderSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_submissions_total",
		Help:      "Order submissions by outcome.",
	}, []string{"outcome"})
)

// ObserveTransition 记录协调器状态切换
func ObserveTransition(to string) {
	sessionTransitions.WithLabelValues(to).Inc()
}

// ObserveStreamMessage 记录一条成功解析的推送
func ObserveStreamMessage() {
	StreamMessages.Add(1)
	streamMessages.Inc()
}

// ObserveDecodeFailure 记录一条被丢弃的推送
func ObserveDecodeFailure() {
	StreamDecodeFailures.Add(1)
	streamDecodeFailures.Inc()
}

// ObserveStaleResult 记录一个被丢弃的过期异步结果
func ObserveStaleResult() {
	StaleResults.Add(1)
	staleResults.Inc()
}

// ObserveAuthFailure 记录认证失败（source: orders, submit, stream）
func ObserveAuthFailure(source string) {
	AuthFailures.Add(1)
	authFailures.WithLabelValues(source).Inc()
}

// ObserveOrderSubmission 记录下单结果（outcome: confirmed, rejected, unauthorized, failed）
func ObserveOrderSubmission(outcome string) {
	orderSubmissions.WithLabelValues(outcome).Inc()
}
