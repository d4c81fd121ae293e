// Package metrics provides Prometheus metrics for marko sockets.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marko"

// Metrics contains all Prometheus collectors used by the socket layer.
type Metrics struct {
	// Connection metrics
	ConnectionsActive   prometheus.Gauge
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected prometheus.Counter
	ConnectionsEvicted  prometheus.Counter
	ConnectionsPruned   prometheus.Counter
	StateTransitions    *prometheus.CounterVec

	// Data transfer metrics
	DatagramsSent     prometheus.Counter
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec
	BytesSent         prometheus.Counter
	BytesReceived     prometheus.Counter
	ReceiveStatus     *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide instance registered on the default registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetricsWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetricsWithRegistry creates a Metrics instance registered on reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of peer connections held by listeners",
		}),
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total peer connections accepted by listeners",
		}),
		ConnectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Total peers rejected because a listener was at capacity",
		}),
		ConnectionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_evicted_total",
			Help:      "Total idle connections evicted to make room for new peers",
		}),
		ConnectionsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_pruned_total",
			Help:      "Total cancelled connections removed by listener sweeps",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Connection state transitions by target state",
		}, []string{"state"}),
		DatagramsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "Total datagrams handed to the transport",
		}),
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total datagrams delivered to handlers",
		}),
		DatagramsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams dropped before reaching the transport, by reason",
		}, []string{"reason"}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes handed to the transport",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes delivered to handlers",
		}),
		ReceiveStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_status_total",
			Help:      "Completed receives by recorded status",
		}, []string{"status"}),
	}
}
