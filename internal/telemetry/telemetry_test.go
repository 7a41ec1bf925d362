package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveRequest("commits", OutcomeSuccess, 20*time.Millisecond)
	m.ObserveRequest("commits", OutcomeSuccess, 30*time.Millisecond)
	m.ObserveRequest("builds", OutcomeAuth, time.Millisecond)
	m.ObserveCache("commit_metrics", false)
	m.ObserveCache("commit_metrics", true)
	m.ObserveCache("commit_metrics", true)
	m.ObserveSubqueryFailure("pull_requests")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("commits", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("builds", OutcomeAuth)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("commit_metrics", CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("commit_metrics", CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubqueryFailures.WithLabelValues("pull_requests")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.UpstreamDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("commits", OutcomeError, time.Second)
		m.ObserveCache("graph", true)
		m.ObserveSubqueryFailure("coverage")
	})
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveSubqueryFailure("builds")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.SubqueryFailures.WithLabelValues("builds")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SubqueryFailures.WithLabelValues("builds")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ObserveSubqueryFailure("coverage")

	path := filepath.Join(t.TempDir(), "gamify.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gamify_subquery_failures_total{subquery="coverage"} 1`)
}
