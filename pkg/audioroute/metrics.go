package audioroute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsCollector Prometheus метрики контроллера.
// При отсутствии Registerer все методы работают как no-op.
type metricsCollector struct {
	enabled bool

	commandsTotal     *prometheus.CounterVec
	routeApplications *prometheus.CounterVec
	fallbacksTotal    *prometheus.CounterVec
	stepFailures      *prometheus.CounterVec
	focusDenied       prometheus.Counter
	deferredTotal     *prometheus.CounterVec
	deviceChanges     *prometheus.CounterVec
	sessionActive     prometheus.Gauge
}

func newMetricsCollector(reg prometheus.Registerer, namespace string) *metricsCollector {
	if reg == nil {
		return &metricsCollector{}
	}
	factory := promauto.With(reg)
	const subsystem = "controller"

	return &metricsCollector{
		enabled: true,
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_total",
			Help:      "Commands handled by the audio route controller",
		}, []string{"command", "status"}),
		routeApplications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "route_applications_total",
			Help:      "Route reconciliation passes by method and effective route",
		}, []string{"method", "route"}),
		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fallbacks_total",
			Help:      "Fallbacks taken during reconciliation",
		}, []string{"reason"}),
		stepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "step_failures_total",
			Help:      "Best-effort platform sub-steps that failed and were skipped",
		}, []string{"step"}),
		focusDenied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "focus_denied_total",
			Help:      "Audio focus requests refused by the platform",
		}),
		deferredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deferred_reapply_total",
			Help:      "Deferred route re-applications by outcome",
		}, []string{"outcome"}),
		deviceChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "device_changes_total",
			Help:      "Output device change notifications by device type and direction",
		}, []string{"direction", "type"}),
		sessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_active",
			Help:      "1 while a communication session is active",
		}),
	}
}

func (m *metricsCollector) command(name string, err error) {
	if !m.enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.commandsTotal.WithLabelValues(name, status).Inc()
}

func (m *metricsCollector) routeApplied(o RouteOutcome) {
	if !m.enabled {
		return
	}
	m.routeApplications.WithLabelValues(string(o.Method), o.Effective.String()).Inc()
}

func (m *metricsCollector) fallback(reason string) {
	if m.enabled {
		m.fallbacksTotal.WithLabelValues(reason).Inc()
	}
}

func (m *metricsCollector) stepFailed(step string) {
	if m.enabled {
		m.stepFailures.WithLabelValues(step).Inc()
	}
}

func (m *metricsCollector) focusRefused() {
	if m.enabled {
		m.focusDenied.Inc()
	}
}

func (m *metricsCollector) deferred(outcome string) {
	if m.enabled {
		m.deferredTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *metricsCollector) deviceChanged(direction string, t DeviceType) {
	if m.enabled {
		m.deviceChanges.WithLabelValues(direction, t.String()).Inc()
	}
}

func (m *metricsCollector) session(state SessionState) {
	if !m.enabled {
		return
	}
	if state == SessionActive {
		m.sessionActive.Set(1)
	} else {
		m.sessionActive.Set(0)
	}
}
