package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
)

// BuildOutcomeLabel enumerates final build verdicts.
type BuildOutcomeLabel string

const (
	OutcomeSuccess       BuildOutcomeLabel = "success"
	OutcomeCompileFailed BuildOutcomeLabel = "compile_failed"
	OutcomeLinkFailed    BuildOutcomeLabel = "link_failed"
	OutcomeError         BuildOutcomeLabel = "error"
)

// Recorder defines observability hooks for builds, stages and compile jobs.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	ObserveCompileDuration(kind string, d time.Duration, success bool)
	SetCompileConcurrency(n int)
	SetUnits(total, changed int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)         {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)                 {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                 {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)                  {}
func (NoopRecorder) ObserveCompileDuration(string, time.Duration, bool) {}
func (NoopRecorder) SetCompileConcurrency(int)                          {}
func (NoopRecorder) SetUnits(int, int)                                  {}
