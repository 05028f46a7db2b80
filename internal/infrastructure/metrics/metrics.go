// Package metrics exposes pipeline counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scontrini/backend/internal/domain"
)

const namespace = "scontrini"

// Pipeline records resolution metrics on its own registry
type Pipeline struct {
	registry    *prometheus.Registry
	resolutions *prometheus.CounterVec
	stageTime   *prometheus.HistogramVec
	fallbacks   *prometheus.CounterVec
	batchItems  prometheus.Histogram
	discarded   prometheus.Counter
}

// NewPipeline registers the pipeline collectors on a fresh registry
func NewPipeline() *Pipeline {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Pipeline{
		registry: reg,
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Resolved raw names by result source.",
		}, []string{"source"}),
		stageTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_fallbacks_total",
			Help:      "Stages that recovered with their conservative default.",
		}, []string{"stage"}),
		batchItems: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_items",
			Help:      "Number of items per batch request.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250},
		}),
		discarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_discarded_total",
			Help:      "Candidates dropped by the reranker for an incompatible unit family.",
		}),
	}
}

// ObserveStage records the latency of one stage
func (p *Pipeline) ObserveStage(stage string, d time.Duration) {
	p.stageTime.WithLabelValues(stage).Observe(d.Seconds())
}

// IncFallback counts a stage fallback
func (p *Pipeline) IncFallback(stage string) {
	p.fallbacks.WithLabelValues(stage).Inc()
}

// IncResolution counts a finished resolution
func (p *Pipeline) IncResolution(source domain.Source) {
	p.resolutions.WithLabelValues(string(source)).Inc()
}

// ObserveBatch records the size of a batch
func (p *Pipeline) ObserveBatch(items int) {
	p.batchItems.Observe(float64(items))
}

// AddRerankDiscarded counts candidates removed by the unit-family filter
func (p *Pipeline) AddRerankDiscarded(n int) {
	if n > 0 {
		p.discarded.Add(float64(n))
	}
}

// WatchInterpretationCache exports the hypothesis cache size as a gauge.
// Register it once per registry.
func (p *Pipeline) WatchInterpretationCache(size func() int) {
	promauto.With(p.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "interpretation_cache_entries",
		Help:      "Hypotheses held by the interpretation cache, expired ones included until swept.",
	}, func() float64 { return float64(size()) })
}

// Registry returns the underlying registry
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
