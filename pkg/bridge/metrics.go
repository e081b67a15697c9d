package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type bridgeMetrics struct {
	enabled bool

	requestsTotal *prometheus.CounterVec
	connections   prometheus.Gauge
}

func newBridgeMetrics(reg prometheus.Registerer, namespace string) *bridgeMetrics {
	if reg == nil {
		return &bridgeMetrics{}
	}
	factory := promauto.With(reg)
	const subsystem = "bridge"

	return &bridgeMetrics{
		enabled: true,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Bridge requests by method and response status",
		}, []string{"method", "status"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Open bridge websocket connections",
		}),
	}
}

func (m *bridgeMetrics) request(method, status string) {
	if !m.enabled {
		return
	}
	switch method {
	case MethodEnterCommunicationMode, MethodSetSpeakerphoneOn, MethodResetAudio, MethodSetRoute:
	default:
		method = "unknown"
	}
	m.requestsTotal.WithLabelValues(method, status).Inc()
}

func (m *bridgeMetrics) connOpened() {
	if m.enabled {
		m.connections.Inc()
	}
}

func (m *bridgeMetrics) connClosed() {
	if m.enabled {
		m.connections.Dec()
	}
}
