package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/fpmake/internal/config"
	"git.home.luguber.info/inful/fpmake/internal/detect"
	"git.home.luguber.info/inful/fpmake/internal/eventstore"
	"git.home.luguber.info/inful/fpmake/internal/events"
	"git.home.luguber.info/inful/fpmake/internal/fingerprint"
	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
	"git.home.luguber.info/inful/fpmake/internal/logfields"
	"git.home.luguber.info/inful/fpmake/internal/metrics"
	"git.home.luguber.info/inful/fpmake/internal/scheduler"
	"git.home.luguber.info/inful/fpmake/internal/source"
	"git.home.luguber.info/inful/fpmake/internal/toolchain"
)

// Stage names used in logs, metrics and events.
const (
	StageDiscover    = "discover"
	StageFingerprint = "fingerprint"
	StageCompile     = "compile"
	StageCommit      = "commit"
	StageLink        = "link"
)

// DefaultBuildService is the standard BuildService.
type DefaultBuildService struct {
	cfg         *config.Config
	toolchain   toolchain.Toolchain
	store       fingerprint.Store
	recorder    metrics.Recorder
	emitter     events.Emitter
	diagnostics io.Writer
	logger      *slog.Logger
	newID       func() string
}

// NewBuildService creates a DefaultBuildService. The store is the only state
// carried between builds.
func NewBuildService(cfg *config.Config, tc toolchain.Toolchain, store fingerprint.Store) *DefaultBuildService {
	return &DefaultBuildService{
		cfg:         cfg,
		toolchain:   tc,
		store:       store,
		recorder:    metrics.NoopRecorder{},
		emitter:     events.Noop{},
		diagnostics: os.Stderr,
		logger:      slog.Default(),
		newID:       func() string { return uuid.NewString() },
	}
}

// WithRecorder injects a metrics recorder.
func (s *DefaultBuildService) WithRecorder(r metrics.Recorder) *DefaultBuildService {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	s.recorder = r
	return s
}

// WithEmitter injects a build event emitter.
func (s *DefaultBuildService) WithEmitter(e events.Emitter) *DefaultBuildService {
	if e == nil {
		e = events.Noop{}
	}
	s.emitter = e
	return s
}

// WithDiagnostics sets where compiler output is copied.
func (s *DefaultBuildService) WithDiagnostics(w io.Writer) *DefaultBuildService {
	s.diagnostics = w
	return s
}

// WithLogger sets a custom logger.
func (s *DefaultBuildService) WithLogger(logger *slog.Logger) *DefaultBuildService {
	s.logger = logger
	return s
}

func (s *DefaultBuildService) objectRoot() string { return s.cfg.Resolve(s.cfg.Build.ObjectDir) }
func (s *DefaultBuildService) output() string     { return s.cfg.Resolve(s.cfg.Project.Output) }

// Run implements BuildService.
func (s *DefaultBuildService) Run(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{
		BuildID:   s.newID(),
		StartTime: time.Now(),
		Output:    s.output(),
	}
	logger := s.logger.With(logfields.BuildID(out.BuildID))
	if req.Trigger == "" {
		req.Trigger = "cli"
	}
	s.emit(ctx, logger, out.BuildID, eventstore.TypeBuildStarted, eventstore.BuildStarted{
		Trigger: req.Trigger,
		BaseDir: s.cfg.Project.BaseDirectory,
		Output:  out.Output,
	})
	logger.Info("Build started", slog.String("trigger", req.Trigger))

	// Discovery, cache load and fingerprinting mutate nothing; any failure
	// here leaves the object tree and the cache as they were.
	files, err := s.discover(logger)
	if err != nil {
		return s.abort(ctx, logger, out, StageDiscover, err)
	}
	out.Units = len(files)

	stageStart := time.Now()
	prior, err := s.store.Load()
	if err != nil {
		return s.abort(ctx, logger, out, StageFingerprint, err)
	}
	det, err := detect.NewDetector(s.toolchain, s.cfg.FingerprintJobs()).
		WithObjectRoot(s.objectRoot()).
		WithLogger(logger).
		Detect(ctx, files, prior)
	if err != nil {
		s.recorder.IncStageResult(StageFingerprint, metrics.ResultFailed)
		return s.abort(ctx, logger, out, StageFingerprint, err)
	}
	s.stageDone(StageFingerprint, stageStart)
	out.Fingerprints = det.Fingerprints
	out.Changes = det.Changed
	s.recorder.SetUnits(len(files), len(det.Changed))
	s.emit(ctx, logger, out.BuildID, eventstore.TypeChangesDetected, eventstore.ChangesDetected{
		Units:   len(files),
		Changed: relPaths(det.Files()),
	})

	// Compile every changed unit; the scheduler returns after the join barrier.
	stageStart = time.Now()
	out.Jobs = scheduler.New(s.toolchain, s.objectRoot(), s.cfg.CompileJobs()).
		WithLogger(logger).
		WithRecorder(s.recorder).
		WithDiagnostics(s.diagnostics).
		Run(ctx, det.Files())
	status, summary := scheduler.Summarize(out.Jobs)
	for _, j := range out.Jobs {
		s.emit(ctx, logger, out.BuildID, eventstore.TypeUnitCompiled, eventstore.UnitCompiled{
			Source:     j.File.Rel,
			ExitCode:   j.ExitCode,
			DurationMS: j.Duration.Milliseconds(),
		})
	}
	if len(out.Jobs) == 0 {
		s.recorder.IncStageResult(StageCompile, metrics.ResultSkipped)
	} else if len(summary.Failed) > 0 {
		s.recorder.IncStageResult(StageCompile, metrics.ResultFailed)
	} else {
		s.recorder.IncStageResult(StageCompile, metrics.ResultSuccess)
	}
	s.recorder.ObserveStageDuration(StageCompile, time.Since(stageStart))

	// Commit before deciding anything else: the cache must reflect compile
	// results even when linking is skipped or fails.
	stageStart = time.Now()
	out.Committed = fingerprint.Commit(det.Fingerprints, status)
	if err := s.store.Save(out.Committed); err != nil {
		s.recorder.IncStageResult(StageCommit, metrics.ResultFailed)
		return s.abort(ctx, logger, out, StageCommit, err)
	}
	s.stageDone(StageCommit, stageStart)
	logger.Debug("Fingerprint cache committed", slog.Int("entries", len(out.Committed)))

	if len(summary.Failed) > 0 {
		s.recorder.IncStageResult(StageLink, metrics.ResultSkipped)
		err := errors.CompileError(fmt.Sprintf("%d of %d compile jobs failed; link skipped", len(summary.Failed), len(out.Jobs))).
			WithContext("failed_units", strings.Join(summary.Failed, ", ")).
			Build()
		return s.fail(ctx, logger, out, StatusCompileFailed, StageCompile, err)
	}

	stageStart = time.Now()
	link := NewLinkStage(s.toolchain, s.objectRoot(), out.Output, logger)
	res, err := link.Run(ctx, files)
	out.Link = res
	if err != nil {
		if res != nil && len(res.Output) > 0 && s.diagnostics != nil {
			_, _ = s.diagnostics.Write(res.Output)
		}
		s.recorder.IncStageResult(StageLink, metrics.ResultFailed)
		return s.fail(ctx, logger, out, StatusLinkFailed, StageLink, err)
	}
	out.Linked = true
	s.stageDone(StageLink, stageStart)

	out.Status = StatusSuccess
	s.finish(out)
	s.recorder.IncBuildOutcome(metrics.OutcomeSuccess)
	s.emit(ctx, logger, out.BuildID, eventstore.TypeBuildCompleted, eventstore.BuildCompleted{
		Compiled:   len(summary.Succeeded),
		Output:     out.Output,
		DurationMS: out.Duration.Milliseconds(),
	})
	logger.Info("Build succeeded",
		slog.Int("units", out.Units),
		slog.Int("compiled", len(summary.Succeeded)),
		logfields.Path(out.Output),
		logfields.DurationMS(float64(out.Duration.Milliseconds())))
	return out, nil
}

// Plan implements BuildService.
func (s *DefaultBuildService) Plan(ctx context.Context) (*Plan, error) {
	files, err := s.discover(s.logger)
	if err != nil {
		return nil, err
	}
	prior, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	det, err := detect.NewDetector(s.toolchain, s.cfg.FingerprintJobs()).
		WithObjectRoot(s.objectRoot()).
		WithLogger(s.logger).
		Detect(ctx, files, prior)
	if err != nil {
		return nil, err
	}
	return &Plan{Units: len(files), Changes: det.Changed, Fingerprints: det.Fingerprints}, nil
}

func (s *DefaultBuildService) discover(logger *slog.Logger) ([]source.File, error) {
	start := time.Now()
	files, err := source.NewDiscovery(s.cfg.Project.BaseDirectory, s.cfg.Sources.Directories).Discover()
	if err != nil {
		s.recorder.IncStageResult(StageDiscover, metrics.ResultFailed)
		return nil, err
	}
	if len(files) == 0 {
		s.recorder.IncStageResult(StageDiscover, metrics.ResultFailed)
		return nil, errors.DiscoveryError("no translation units found").
			WithContext("directories", strings.Join(s.cfg.Sources.Directories, ", ")).
			Build()
	}
	s.stageDone(StageDiscover, start)
	logger.Info("Discovered translation units", slog.Int("units", len(files)))
	return files, nil
}

func (s *DefaultBuildService) stageDone(stage string, start time.Time) {
	s.recorder.ObserveStageDuration(stage, time.Since(start))
	s.recorder.IncStageResult(stage, metrics.ResultSuccess)
}

func (s *DefaultBuildService) finish(out *Outcome) {
	out.EndTime = time.Now()
	out.Duration = out.EndTime.Sub(out.StartTime)
	s.recorder.ObserveBuildDuration(out.Duration)
}

// abort ends a build that failed before any compile verdict exists.
func (s *DefaultBuildService) abort(ctx context.Context, logger *slog.Logger, out *Outcome, stage string, err error) (*Outcome, error) {
	return s.fail(ctx, logger, out, StatusFailed, stage, err)
}

func (s *DefaultBuildService) fail(ctx context.Context, logger *slog.Logger, out *Outcome, status Status, stage string, err error) (*Outcome, error) {
	out.Status = status
	s.finish(out)
	if classified, ok := err.(*errors.ClassifiedError); ok {
		err = classified.WithContext("build_id", out.BuildID)
	}

	label := metrics.OutcomeError
	switch status {
	case StatusCompileFailed:
		label = metrics.OutcomeCompileFailed
	case StatusLinkFailed:
		label = metrics.OutcomeLinkFailed
	}
	s.recorder.IncBuildOutcome(label)

	s.emit(ctx, logger, out.BuildID, eventstore.TypeBuildFailed, eventstore.BuildFailed{
		Stage:       stage,
		Error:       err.Error(),
		Compiled:    len(out.CompiledUnits()),
		FailedUnits: out.FailedUnits(),
		DurationMS:  out.Duration.Milliseconds(),
	})
	logger.Error("Build failed",
		logfields.Stage(stage),
		slog.String("category", string(errors.GetCategory(err))),
		logfields.Error(err))
	return out, err
}

func (s *DefaultBuildService) emit(ctx context.Context, logger *slog.Logger, buildID, eventType string, payload any) {
	e, err := eventstore.NewEvent(buildID, eventType, payload)
	if err == nil {
		err = s.emitter.Emit(ctx, e)
	}
	if err != nil {
		logger.Warn("Failed to emit build event", slog.String("type", eventType), logfields.Error(err))
	}
}

func relPaths(files []source.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Rel
	}
	return out
}
