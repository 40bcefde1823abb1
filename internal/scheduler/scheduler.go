// Package scheduler runs one compile job per changed unit and waits for all of them.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/fpmake/internal/logfields"
	"git.home.luguber.info/inful/fpmake/internal/metrics"
	"git.home.luguber.info/inful/fpmake/internal/source"
	"git.home.luguber.info/inful/fpmake/internal/toolchain"
)

// StartFailure is the exit code recorded for a job whose process never ran
// (object directory could not be created, driver missing, ...).
const StartFailure = -1

// Compiler is the part of the toolchain the scheduler needs.
type Compiler interface {
	Compile(ctx context.Context, f source.File, object string) (toolchain.Result, error)
}

// Job is one compile job and, after the barrier, its outcome.
type Job struct {
	File     source.File
	Object   string
	ExitCode int
	Err      error
	Output   []byte
	Duration time.Duration
}

// Succeeded reports whether the job ran and exited 0.
func (j *Job) Succeeded() bool { return j.Err == nil && j.ExitCode == 0 }

// Scheduler starts compile jobs through a concurrency limiter. A failing job
// never cancels or delays its siblings, and no job is retried.
type Scheduler struct {
	compiler    Compiler
	objectRoot  string
	limit       int
	diagnostics io.Writer
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// New creates a Scheduler writing objects below objectRoot with at most limit
// concurrent compiler processes.
func New(compiler Compiler, objectRoot string, limit int) *Scheduler {
	if limit <= 0 {
		limit = 1
	}
	return &Scheduler{
		compiler:    compiler,
		objectRoot:  objectRoot,
		limit:       limit,
		diagnostics: os.Stderr,
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithRecorder injects a metrics recorder.
func (s *Scheduler) WithRecorder(r metrics.Recorder) *Scheduler {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	s.recorder = r
	return s
}

// WithDiagnostics sets where compiler output is copied. Output of each job is
// written in one piece when it finishes so parallel jobs do not interleave.
func (s *Scheduler) WithDiagnostics(w io.Writer) *Scheduler {
	if w == nil {
		w = io.Discard
	}
	s.diagnostics = w
	return s
}

// Run compiles every file and blocks until all jobs have terminated. The
// returned jobs are in the order of files.
func (s *Scheduler) Run(ctx context.Context, files []source.File) []*Job {
	jobs := make([]*Job, len(files))
	if len(files) == 0 {
		return jobs
	}
	s.recorder.SetCompileConcurrency(s.limit)
	s.logger.Info("Starting compile jobs", logfields.Jobs(len(files)), slog.Int("limit", s.limit))

	sem := make(chan struct{}, s.limit)
	var wg sync.WaitGroup
	var outMu sync.Mutex

	for i, f := range files {
		job := &Job{File: f, Object: f.ObjectPath(s.objectRoot)}
		jobs[i] = job

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}        // Acquire slot
			defer func() { <-sem }() // Release slot

			s.runJob(ctx, job)

			if len(job.Output) > 0 {
				outMu.Lock()
				_, _ = s.diagnostics.Write(job.Output)
				outMu.Unlock()
			}
		}()
	}

	// Join barrier: nothing proceeds until every job has exited.
	wg.Wait()
	return jobs
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	start := time.Now()
	defer func() {
		job.Duration = time.Since(start)
		s.recorder.ObserveCompileDuration(job.File.Kind.String(), job.Duration, job.Succeeded())
	}()

	if err := os.MkdirAll(filepath.Dir(job.Object), 0o750); err != nil {
		job.ExitCode = StartFailure
		job.Err = err
		s.logger.Error("Failed to create object directory", logfields.Object(job.Object), logfields.Error(err))
		return
	}

	res, err := s.compiler.Compile(ctx, job.File, job.Object)
	job.Output = res.Output
	if err != nil {
		job.ExitCode = StartFailure
		job.Err = err
		s.logger.Error("Compile job could not run", logfields.Source(job.File.Rel), logfields.Error(err))
		return
	}
	job.ExitCode = res.ExitCode
	if res.ExitCode != 0 {
		s.logger.Warn("Compile job failed", logfields.Source(job.File.Rel), logfields.ExitCode(res.ExitCode))
		return
	}
	s.logger.Debug("Compile job succeeded",
		logfields.Source(job.File.Rel),
		logfields.Object(job.Object),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
}

// Summary splits jobs into succeeded and failed units.
type Summary struct {
	Succeeded []string
	Failed    []string
}

// Summarize reports per-unit success, keyed by relative path.
func Summarize(jobs []*Job) (map[string]bool, Summary) {
	status := make(map[string]bool, len(jobs))
	var sum Summary
	for _, j := range jobs {
		status[j.File.Rel] = j.Succeeded()
		if j.Succeeded() {
			sum.Succeeded = append(sum.Succeeded, j.File.Rel)
		} else {
			sum.Failed = append(sum.Failed, j.File.Rel)
		}
	}
	return status, sum
}
