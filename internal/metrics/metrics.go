// Package metrics holds the station's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the station collectors.
type Metrics struct {
	TagTransactions *prometheus.CounterVec
	TagDuration     *prometheus.HistogramVec
	CheckinSteps    *prometheus.CounterVec
	RemoteRequests  *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TagTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackops_tag_transactions_total",
			Help: "Tag transactions by operation and result.",
		}, []string{"op", "result"}),
		TagDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hackops_tag_transaction_seconds",
			Help:    "Time from acquiring the reader to releasing it, including waiting for a tag.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		CheckinSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackops_checkin_steps_total",
			Help: "Check-in workflow steps by step and result.",
		}, []string{"step", "result"}),
		RemoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackops_remote_requests_total",
			Help: "Requests to the hackathon API by endpoint and result.",
		}, []string{"endpoint", "result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hackops_active_sessions",
			Help: "Open check-in sessions.",
		}),
	}
	reg.MustRegister(m.TagTransactions, m.TagDuration, m.CheckinSteps, m.RemoteRequests, m.ActiveSessions)
	return m
}

// ObserveTag records one tag transaction. It matches nfc.Observer.
func (m *Metrics) ObserveTag(op, result string, elapsed time.Duration) {
	m.TagTransactions.WithLabelValues(op, result).Inc()
	m.TagDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveStep records one check-in step outcome.
func (m *Metrics) ObserveStep(step, result string) {
	m.CheckinSteps.WithLabelValues(step, result).Inc()
}

// ObserveRemote records one remote API request outcome.
func (m *Metrics) ObserveRemote(endpoint, result string) {
	m.RemoteRequests.WithLabelValues(endpoint, result).Inc()
}
