package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts token refreshes. A nil *Metrics records nothing.
type Metrics struct {
	refreshes *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "studyon",
				Subsystem: "session",
				Name:      "refreshes_total",
				Help:      "Access token refresh attempts partitioned by outcome.",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes)
	}
	return m
}

func (m *Metrics) refreshed(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}
