package authcore

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors emitted by the engine. All
// counters are safe for concurrent use.
type Metrics struct {
	Logins          *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	SessionsRevoked *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec
}

// NewMetrics creates and registers the engine collectors on reg. Passing a
// nil registerer yields collectors that count but are never scraped, which
// is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_refresh_total",
			Help: "Refresh attempts by result.",
		}, []string{"result"}),
		SessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_sessions_revoked_total",
			Help: "Revoked refresh token records by trigger scope.",
		}, []string{"scope"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_rate_limited_total",
			Help: "Requests denied by the rate limiter, by route.",
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(m.Logins, m.Refreshes, m.SessionsRevoked, m.RateLimited)
	}
	return m
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.Logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.Refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) revoked(scope string, n float64) {
	if m != nil && n > 0 {
		m.SessionsRevoked.WithLabelValues(scope).Add(n)
	}
}

func (m *Metrics) rateLimited(route string) {
	if m != nil {
		m.RateLimited.WithLabelValues(route).Inc()
	}
}
