// Package metrics holds the Prometheus collectors for the ingest pipeline
// and the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gcn"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	Messages        *prometheus.CounterVec // by kind
	Packets         *prometheus.CounterVec // by pkt_type_name
	DecodeErrors    prometheus.Counter
	TopicMismatches prometheus.Counter
	SinkErrors      *prometheus.CounterVec // by sink
	RowsWritten     *prometheus.CounterVec // by table
	NewTriggers     prometheus.Counter
	PositionUpdates prometheus.Counter
	Notifications   *prometheus.CounterVec // by result
	APIDecodes      *prometheus.CounterVec // by result
	QueueDepth      prometheus.Gauge
	HandleSeconds   prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers all collectors with reg. A nil reg uses a fresh registry,
// which keeps tests and multiple instances independent.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages received, by stream kind.",
		}, []string{"kind"}),
		Packets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_decoded_total",
			Help:      "Binary packets decoded, by type mnemonic.",
		}, []string{"pkt_type_name"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_decode_errors_total",
			Help:      "Binary payloads that failed to decode.",
		}),
		TopicMismatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_topic_mismatch_total",
			Help:      "Packets whose type differs from the topic they arrived on.",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed writes, by sink.",
		}, []string{"sink"}),
		RowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows flushed to the analytics store, by table.",
		}, []string{"table"}),
		NewTriggers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_new_total",
			Help:      "Triggers seen for the first time.",
		}),
		PositionUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_position_improved_total",
			Help:      "Trigger positions replaced by a smaller error radius.",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert notifications published, by result.",
		}, []string{"result"}),
		APIDecodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_decodes_total",
			Help:      "Packets decoded through the HTTP API, by result.",
		}, []string{"result"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_depth",
			Help:      "Messages waiting for a worker.",
		}),
		HandleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_handle_seconds",
			Help:      "Time to dispatch and route one message.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		gatherer: reg,
	}
}

// Handler serves the registered collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the registry backing these collectors.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}
