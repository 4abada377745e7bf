package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the assistant's collectors. A zero registry is never used;
// build one with NewMetrics.
type Metrics struct {
	Registry *prometheus.Registry

	Turns               *prometheus.CounterVec
	RejectedSends       *prometheus.CounterVec
	ModelLatency        prometheus.Histogram
	ReloadFailures      *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	EmbeddingFailures   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finassist",
			Name:      "turns_total",
			Help:      "Completed chat turns by outcome.",
		}, []string{"outcome"}),
		RejectedSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finassist",
			Name:      "rejected_sends_total",
			Help:      "Send attempts rejected before reaching the model.",
		}, []string{"reason"}),
		ModelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finassist",
			Name:      "model_call_seconds",
			Help:      "Round trip of the model-calling service.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ReloadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finassist",
			Name:      "reload_failures_total",
			Help:      "Failed financial collection reloads.",
		}, []string{"collection"}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finassist",
			Name:      "persistence_failures_total",
			Help:      "Dropped transcript reads and writes.",
		}, []string{"op"}),
		EmbeddingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "finassist",
			Name:      "embedding_failures_total",
			Help:      "Created items whose semantic embedding failed.",
		}),
	}

	m.Registry.MustRegister(
		m.Turns,
		m.RejectedSends,
		m.ModelLatency,
		m.ReloadFailures,
		m.PersistenceFailures,
		m.EmbeddingFailures,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
