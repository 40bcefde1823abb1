package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/fpmake/internal/detect"
	"git.home.luguber.info/inful/fpmake/internal/fingerprint"
	"git.home.luguber.info/inful/fpmake/internal/scheduler"
	"git.home.luguber.info/inful/fpmake/internal/toolchain"
)

// BuildService runs builds. The CLI and the watcher are thin wrappers over it.
type BuildService interface {
	// Run performs a full incremental build.
	Run(ctx context.Context, req Request) (*Outcome, error)
	// Plan reports what Run would compile without compiling, linking or
	// writing the cache.
	Plan(ctx context.Context) (*Plan, error)
}

// Request carries per-invocation options.
type Request struct {
	// Trigger names what started the build ("cli", "watch", "interval").
	Trigger string
}

// Status is the verdict of a build.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusCompileFailed Status = "compile_failed" // link skipped
	StatusLinkFailed    Status = "link_failed"
	StatusFailed        Status = "failed" // aborted before compiling
)

// IsSuccess reports whether the executable was produced.
func (s Status) IsSuccess() bool { return s == StatusSuccess }

// Outcome is the aggregate result of one build.
type Outcome struct {
	BuildID string
	Status  Status

	// Units is the number of discovered translation units.
	Units int
	// Fingerprints holds the fresh fingerprint of every discovered unit.
	Fingerprints fingerprint.Set
	// Committed is what was persisted for the next run.
	Committed fingerprint.Set
	// Changes lists the units that were scheduled and why.
	Changes []detect.Change
	// Jobs holds one entry per scheduled unit, after the join barrier.
	Jobs []*scheduler.Job

	Linked bool
	Link   *toolchain.Result
	Output string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// FailedUnits returns the units whose compile job failed.
func (o *Outcome) FailedUnits() []string {
	var out []string
	for _, j := range o.Jobs {
		if !j.Succeeded() {
			out = append(out, j.File.Rel)
		}
	}
	return out
}

// CompiledUnits returns the units whose compile job succeeded.
func (o *Outcome) CompiledUnits() []string {
	var out []string
	for _, j := range o.Jobs {
		if j.Succeeded() {
			out = append(out, j.File.Rel)
		}
	}
	return out
}

// Plan is the result of a dry run.
type Plan struct {
	Units        int
	Changes      []detect.Change
	Fingerprints fingerprint.Set
}
