// Package metrics - счётчики Prometheus для событий аутентификации.
// Нулевой *Metrics допустим: все методы становятся no-op.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Значения меток result.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultLocked  = "locked"
	ResultReuse   = "reuse"
)

// Metrics объединяет счётчики сервиса.
type Metrics struct {
	logins          *prometheus.CounterVec
	tokenRejections *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	lockouts        *prometheus.CounterVec
	csrfRejections  prometheus.Counter
	eventsDropped   prometheus.Counter
}

// New создаёт счётчики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		tokenRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_rejections_total",
			Help: "Rejected access tokens by reason.",
		}, []string{"reason"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Refresh token rotations by result.",
		}, []string{"result"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Keys that reached the lockout threshold, by dimension.",
		}, []string{"dimension"}),
		csrfRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_csrf_rejections_total",
			Help: "Requests rejected by the CSRF guard.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_events_dropped_total",
			Help: "Security events dropped because the dispatch buffer was full.",
		}),
	}

	reg.MustRegister(m.logins, m.tokenRejections, m.refreshes, m.lockouts, m.csrfRejections, m.eventsDropped)

	return m
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenRejected(reason string) {
	if m == nil {
		return
	}
	m.tokenRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Lockout(dimension string) {
	if m == nil {
		return
	}
	m.lockouts.WithLabelValues(dimension).Inc()
}

func (m *Metrics) CSRFRejected() {
	if m == nil {
		return
	}
	m.csrfRejections.Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
