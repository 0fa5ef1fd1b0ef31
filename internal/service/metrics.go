package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments entitlement resolution. A nil *Metrics records nothing.
type Metrics struct {
	resolutions    *prometheus.CounterVec
	unknownCourses prometheus.Counter
	denials        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyon",
			Subsystem: "entitlement",
			Name:      "resolutions_total",
			Help:      "Entitlement resolutions partitioned by scope and outcome.",
		}, []string{"scope", "outcome"}),
		unknownCourses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "studyon",
			Subsystem: "entitlement",
			Name:      "unknown_courses_total",
			Help:      "Local courses billing did not report, counted per resolution.",
		}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "studyon",
			Subsystem: "entitlement",
			Name:      "lesson_denials_total",
			Help:      "Lesson views refused by the access guard.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.resolutions, m.unknownCourses, m.denials)
	}
	return m
}

func (m *Metrics) resolved(scope string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.resolutions.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) unknown(n int) {
	if m == nil || n == 0 {
		return
	}
	m.unknownCourses.Add(float64(n))
}

func (m *Metrics) denied() {
	if m == nil {
		return
	}
	m.denials.Inc()
}
