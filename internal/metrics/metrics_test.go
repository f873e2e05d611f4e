package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionsActive.Inc()
	m.SessionsActive.Inc()
	m.SessionsActive.Dec()
	m.SamplesTotal.Add(3)
	m.ObserveProposal(ResultOK, 20*time.Millisecond)
	m.ObserveProposal(ResultOK, 40*time.Millisecond)
	m.ObserveProposal(ResultInfeasible, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SamplesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProposalsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProposalsTotal.WithLabelValues(ResultInfeasible)))

	count, err := testutil.GatherAndCount(reg, "bayesopt_proposal_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP bayesopt_sessions_active Number of live optimization sessions.
# TYPE bayesopt_sessions_active gauge
bayesopt_sessions_active 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bayesopt_sessions_active"))
}

func TestMetricsIsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
	assert.Panics(t, func() {
		reg := prometheus.NewRegistry()
		New(reg)
		New(reg)
	})
}
