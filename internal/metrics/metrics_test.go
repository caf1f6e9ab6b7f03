package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/fanout"
)

func TestObservePostCountsByStatus(t *testing.T) {
	t.Parallel()
	m := New()
	m.ObservePost("bluesky", fanout.StatusSucceeded, 120*time.Millisecond)
	m.ObservePost("bluesky", fanout.StatusFailed, time.Second)
	m.ObservePost("twitter", fanout.StatusSkipped, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostsTotal.WithLabelValues("bluesky", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostsTotal.WithLabelValues("bluesky", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostsTotal.WithLabelValues("twitter", "skipped")))
	// Skips are not timed.
	assert.Equal(t, 1, testutil.CollectAndCount(m.PostDuration))
}

func TestRecordRun(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecordRun("webhook", "ok", 2*time.Second, 2, 1, 0)
	m.RecordRun("manual", "busy", 0, 0, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("webhook", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("manual", "busy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArticlesTotal.WithLabelValues("posted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArticlesTotal.WithLabelValues("unposted")))
	assert.Greater(t, testutil.ToFloat64(m.LastRunTimestamp), 0.0)
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObservePost("x", fanout.StatusFailed, time.Second)
	m.RecordRun("manual", "ok", time.Second, 1, 0, 0)
	m.RecordWebhook("verified")
	m.SetRunning(true)
}

func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecordWebhook("handshake")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `crosspost_webhooks_total{result="handshake"} 1`))
}
