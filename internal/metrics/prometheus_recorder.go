package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	registry          *prom.Registry
	stageDuration     *prom.HistogramVec
	buildDuration     prom.Histogram
	stageResults      *prom.CounterVec
	buildOutcome      *prom.CounterVec
	compileDuration   *prom.HistogramVec
	compileResults    *prom.CounterVec
	compileConcurrent prom.Gauge
	unitsTotal        prom.Gauge
	unitsChanged      prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "fpmake",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "fpmake",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "fpmake",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "fpmake",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.compileDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "fpmake",
			Name:      "compile_duration_seconds",
			Help:      "Duration of individual compile jobs",
			Buckets:   prom.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind", "result"})
		pr.compileResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "fpmake",
			Name:      "compile_results_total",
			Help:      "Compile jobs by success/failure",
		}, []string{"result"})
		pr.compileConcurrent = prom.NewGauge(prom.GaugeOpts{
			Namespace: "fpmake",
			Name:      "compile_concurrency",
			Help:      "Compile concurrency limit used by the last build",
		})
		pr.unitsTotal = prom.NewGauge(prom.GaugeOpts{
			Namespace: "fpmake",
			Name:      "units",
			Help:      "Translation units discovered by the last build",
		})
		pr.unitsChanged = prom.NewGauge(prom.GaugeOpts{
			Namespace: "fpmake",
			Name:      "units_changed",
			Help:      "Translation units scheduled for compilation by the last build",
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
			pr.compileDuration, pr.compileResults, pr.compileConcurrent, pr.unitsTotal, pr.unitsChanged)
	})
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.registry }

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveCompileDuration(kind string, d time.Duration, success bool) {
	if p == nil || p.compileDuration == nil {
		return
	}
	res := string(ResultFailed)
	if success {
		res = string(ResultSuccess)
	}
	p.compileDuration.WithLabelValues(kind, res).Observe(d.Seconds())
	p.compileResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetCompileConcurrency(n int) {
	if p == nil || p.compileConcurrent == nil {
		return
	}
	p.compileConcurrent.Set(float64(n))
}

func (p *PrometheusRecorder) SetUnits(total, changed int) {
	if p == nil || p.unitsTotal == nil {
		return
	}
	p.unitsTotal.Set(float64(total))
	p.unitsChanged.Set(float64(changed))
}
