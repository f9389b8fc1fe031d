// Package metrics exposes Prometheus instrumentation for the pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors written by the pipelines.
type Metrics struct {
	DocumentsIngested *prometheus.CounterVec
	ChatRequests      *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ragserver_documents_ingested_total",
			Help: "Documents processed by the ingestion pipeline, by status (ok|failed).",
		}, []string{"status"}),
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ragserver_chat_requests_total",
			Help: "Chat requests by outcome (cache_hit|generated|error).",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragserver_stage_duration_seconds",
			Help:    "Duration of answering pipeline stages (embed|search|generate).",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}
