// Package metrics provides Prometheus metrics for crosspost.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crosspost/internal/fanout"
)

const namespace = "crosspost"

// Metrics owns a private registry so tests and multiple instances do not
// collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	// PostsTotal counts destination attempts by outcome.
	PostsTotal *prometheus.CounterVec
	// PostDuration measures a single destination call.
	PostDuration *prometheus.HistogramVec
	// RunsTotal counts runs by trigger and result.
	RunsTotal *prometheus.CounterVec
	// RunDuration measures whole runs.
	RunDuration *prometheus.HistogramVec
	// ArticlesTotal counts processed articles by result (posted, unposted, mark_failed).
	ArticlesTotal *prometheus.CounterVec
	// WebhooksTotal counts webhook deliveries by result.
	WebhooksTotal *prometheus.CounterVec
	// LastRunTimestamp is the unix time of the last finished run.
	LastRunTimestamp prometheus.Gauge
	// RunInProgress is 1 while a run holds the lock.
	RunInProgress prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		PostsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_total",
				Help:      "Destination post attempts by outcome",
			},
			[]string{"destination", "status"},
		),
		PostDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "post_duration_seconds",
				Help:      "Duration of destination post calls in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"destination"},
		),
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Cross-posting runs by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of cross-posting runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"trigger"},
		),
		ArticlesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "articles_total",
				Help:      "Articles processed by result",
			},
			[]string{"result"},
		),
		WebhooksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhooks_total",
				Help:      "Webhook deliveries by result",
			},
			[]string{"result"},
		),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run",
		}),
		RunInProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a run is executing",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObservePost records one destination outcome.
func (m *Metrics) ObservePost(destination string, status fanout.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PostsTotal.WithLabelValues(destination, string(status)).Inc()
	if status != fanout.StatusSkipped {
		m.PostDuration.WithLabelValues(destination).Observe(elapsed.Seconds())
	}
}

// RecordRun records a finished run. result is "ok", "error" or "busy".
func (m *Metrics) RecordRun(trigger, result string, took time.Duration, posted, unposted, markFailed int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(trigger, result).Inc()
	if result == "busy" {
		return
	}
	m.RunDuration.WithLabelValues(trigger).Observe(took.Seconds())
	m.ArticlesTotal.WithLabelValues("posted").Add(float64(posted))
	m.ArticlesTotal.WithLabelValues("unposted").Add(float64(unposted))
	m.ArticlesTotal.WithLabelValues("mark_failed").Add(float64(markFailed))
	m.LastRunTimestamp.SetToCurrentTime()
}

func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.RunInProgress.Set(1)
		return
	}
	m.RunInProgress.Set(0)
}

// RecordWebhook counts a webhook delivery; result is e.g. "verified",
// "handshake", "rejected", "busy", "error".
func (m *Metrics) RecordWebhook(result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(result).Inc()
}

var _ fanout.Observer = (*Metrics)(nil)
