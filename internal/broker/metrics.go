package broker

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seqbroker"

// Metrics holds the broker's Prometheus collectors.
type Metrics struct {
	PacketsReceived *prometheus.CounterVec
	Published       *prometheus.CounterVec
	FanoutSent      prometheus.Counter
	FanoutErrors    prometheus.Counter
	Retransmits     *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	Subscriptions   prometheus.Gauge
	Topics          prometheus.Gauge
	TopicSequence   *prometheus.GaugeVec
	HistoryEntries  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them into reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Datagrams decoded by the broker, by packet kind",
		}, []string{"kind"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Messages sequenced and recorded, by topic",
		}, []string{"topic"}),
		FanoutSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "sent_total",
			Help:      "Publish datagrams sent to subscribers",
		}),
		FanoutErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "errors_total",
			Help:      "Publish datagrams the socket refused to send",
		}),
		Retransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmits_total",
			Help:      "Retransmission requests, by result",
		}, []string{"result"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Datagrams dropped without reply, by reason",
		}, []string{"reason"}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Current number of (topic, endpoint) subscriptions",
		}),
		Topics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sequenced_topics",
			Help:      "Topics holding a sequence counter",
		}),
		TopicSequence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topic_sequence",
			Help:      "Last sequence assigned per topic",
		}, []string{"topic"}),
		HistoryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Live entries in the replay ring",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PacketsReceived,
			m.Published,
			m.FanoutSent,
			m.FanoutErrors,
			m.Retransmits,
			m.Dropped,
			m.Subscriptions,
			m.Topics,
			m.TopicSequence,
			m.HistoryEntries,
		)
	}
	return m
}
