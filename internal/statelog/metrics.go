package statelog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the state log.
type Metrics struct {
	RiskEventsLogged prometheus.Counter
	WriteErrors      *prometheus.CounterVec
	WriteDuration    *prometheus.HistogramVec
	ConnectAttempts  *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "arm_ai"
	}
	factory := promauto.With(reg)

	return &Metrics{
		RiskEventsLogged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statelog",
			Name:      "risk_events_logged_total",
			Help:      "Risk events persisted to the state store.",
		}),
		WriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statelog",
			Name:      "write_errors_total",
			Help:      "Failed writes by collection.",
		}, []string{"collection"}),
		WriteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "statelog",
			Name:      "write_duration_seconds",
			Help:      "Write latency by collection.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
		ConnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statelog",
			Name:      "connect_attempts_total",
			Help:      "Store connection attempts by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeWrite(collection string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.WriteDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	if err != nil {
		m.WriteErrors.WithLabelValues(collection).Inc()
	}
}

func (m *Metrics) riskEventLogged() {
	if m == nil {
		return
	}
	m.RiskEventsLogged.Inc()
}

func (m *Metrics) connectAttempt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}
