// Package telemetry exposes the service's Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pagechat"

// Metrics groups every collector the service records to.
type Metrics struct {
	ScrapeRequests     *prometheus.CounterVec
	ChatRequests       *prometheus.CounterVec
	ExtractionStrategy *prometheus.CounterVec
	AnswerFallbacks    prometheus.Counter
	SessionsSwept      prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScrapeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_requests_total",
			Help:      "Scrape requests by outcome.",
		}, []string{"status"}),
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"status"}),
		ExtractionStrategy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_strategy_total",
			Help:      "Successful extractions by winning strategy.",
		}, []string{"strategy"}),
		AnswerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_fallback_total",
			Help:      "Answers produced after the primary strategy failed.",
		}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ScrapeRequests,
			m.ChatRequests,
			m.ExtractionStrategy,
			m.AnswerFallbacks,
			m.SessionsSwept,
			m.RequestDuration,
		)
	}
	return m
}

// The helpers below accept a nil receiver so components can run without metrics.

func (m *Metrics) Scrape(status string) {
	if m != nil {
		m.ScrapeRequests.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Chat(status string) {
	if m != nil {
		m.ChatRequests.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Extracted(strategy string) {
	if m != nil {
		m.ExtractionStrategy.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) Fallback() {
	if m != nil {
		m.AnswerFallbacks.Inc()
	}
}

func (m *Metrics) Swept(n int) {
	if m != nil && n > 0 {
		m.SessionsSwept.Add(float64(n))
	}
}

func (m *Metrics) ObserveRequest(route string, took time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(route).Observe(took.Seconds())
	}
}
