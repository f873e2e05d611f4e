// Package metrics defines the Prometheus collectors exported by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bayesopt"

// Proposal results used as the "result" label.
const (
	ResultOK         = "ok"
	ResultNoSamples  = "no_samples"
	ResultFitFailed  = "fit_failed"
	ResultInfeasible = "infeasible"
	ResultCanceled   = "canceled"
	ResultError      = "error"
)

// Metrics groups the service collectors.
type Metrics struct {
	SessionsActive   prometheus.Gauge
	SamplesTotal     prometheus.Counter
	ProposalsTotal   *prometheus.CounterVec
	ProposalDuration prometheus.Histogram
}

// New registers the collectors on reg. Use a fresh prometheus.NewRegistry()
// per instance in tests; registering twice on the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live optimization sessions.",
		}),
		SamplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Total observations added to sessions.",
		}),
		ProposalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_total",
			Help:      "Total next-sample requests by result.",
		}, []string{"result"}),
		ProposalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proposal_duration_seconds",
			Help:      "Time spent fitting the surrogate and maximizing expected improvement.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

// ObserveProposal records one proposal attempt.
func (m *Metrics) ObserveProposal(result string, elapsed time.Duration) {
	m.ProposalsTotal.WithLabelValues(result).Inc()
	m.ProposalDuration.Observe(elapsed.Seconds())
}
