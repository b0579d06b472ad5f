// Package metrics exposes capture and analysis counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ekaya-inc/bugsneak/pkg/capture"
	"github.com/ekaya-inc/bugsneak/pkg/llm"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/services"
)

const namespace = "bugsneak"

// Metrics holds the collectors for one registry.
type Metrics struct {
	drops       *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	ingested    *prometheus.CounterVec
	batchSize   prometheus.Histogram
	analyses    *prometheus.CounterVec
	analysisDur *prometheus.HistogramVec
	swept       *prometheus.CounterVec
	rateLimited prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Error events rejected by the request guard, by reason.",
		}, []string{"reason"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_recorded_total",
			Help:      "Admitted error events by grouping store outcome.",
		}, []string{"outcome"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Ingest batches by result.",
		}, []string{"result"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_events",
			Help:      "Number of events per accepted ingest batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_analyses_total",
			Help:      "AI analyses by provider and result.",
		}, []string{"provider", "result"}),
		analysisDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_analysis_duration_seconds",
			Help:      "AI provider call latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Rows removed by retention sweeps, by kind.",
		}, []string{"kind"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rate_limited_total",
			Help:      "Ingest requests rejected by the per-client rate limiter.",
		}),
	}

	reg.MustRegister(m.drops, m.outcomes, m.ingested, m.batchSize, m.analyses, m.analysisDur, m.swept, m.rateLimited)
	return m
}

var (
	_ capture.Observer          = (*Metrics)(nil)
	_ services.AnalysisObserver = (*Metrics)(nil)
	_ services.SweepObserver    = (*Metrics)(nil)
)

// ObserveDrop counts a guard rejection.
func (m *Metrics) ObserveDrop(reason string) {
	m.drops.WithLabelValues(reason).Inc()
}

// ObserveOutcome counts a grouping store result.
func (m *Metrics) ObserveOutcome(outcome models.RecordOutcome) {
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveIngest counts an ingest batch. Rejected batches carry no size.
func (m *Metrics) ObserveIngest(events int, accepted bool) {
	if !accepted {
		m.ingested.WithLabelValues("rejected").Inc()
		return
	}
	m.ingested.WithLabelValues("accepted").Inc()
	m.batchSize.Observe(float64(events))
}

// ObserveRateLimited counts an ingest request refused by the rate limiter.
// The client key is not used as a label.
func (m *Metrics) ObserveRateLimited(string) {
	m.rateLimited.Inc()
}

// ObserveAnalysis records one AI provider call.
func (m *Metrics) ObserveAnalysis(provider string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = string(llm.GetErrorType(err))
	}
	m.analyses.WithLabelValues(provider, result).Inc()
	m.analysisDur.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveSweep records a retention sweep.
func (m *Metrics) ObserveSweep(result *services.RetentionResult) {
	if result == nil {
		return
	}
	m.swept.WithLabelValues("expired").Add(float64(result.Expired))
	m.swept.WithLabelValues("trimmed").Add(float64(result.Trimmed))
}
