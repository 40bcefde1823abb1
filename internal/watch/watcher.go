// Package watch rebuilds the project whenever its sources change, and
// optionally on a fixed interval.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/fpmake/internal/logfields"
	"git.home.luguber.info/inful/fpmake/internal/source"
)

// Triggers passed to the build function.
const (
	TriggerStart    = "watch-start"
	TriggerChange   = "watch"
	TriggerInterval = "interval"
)

// headerExts are not translation units but change the preprocessed output of
// the units that include them.
var headerExts = map[string]bool{".h": true, ".hh": true, ".hpp": true, ".hxx": true, ".inc": true, ".inl": true}

// BuildFunc runs one build. Errors are logged; watching continues.
type BuildFunc func(ctx context.Context, trigger string) error

// Options configures a Watcher.
type Options struct {
	// Roots are the directories to watch recursively.
	Roots []string
	// Debounce is the quiet window after the last change before rebuilding.
	Debounce time.Duration
	// Interval, when positive, also rebuilds on a fixed schedule.
	Interval time.Duration
}

// Watcher serializes builds requested by filesystem changes and the interval
// schedule. At most one build runs at a time and requests arriving during a
// build collapse into a single follow-up build.
type Watcher struct {
	opts     Options
	build    BuildFunc
	logger   *slog.Logger
	requests chan string
}

// New creates a Watcher.
func New(opts Options, build BuildFunc) *Watcher {
	return &Watcher{
		opts:     opts,
		build:    build,
		logger:   slog.Default(),
		requests: make(chan string, 1),
	}
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger
	return w
}

// Request asks for a build. It never blocks; a request made while one is
// already pending is dropped.
func (w *Watcher) Request(trigger string) {
	select {
	case w.requests <- trigger:
	default:
	}
}

// Run builds once, then watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = fsw.Close() }()
	for _, root := range w.opts.Roots {
		if err := addDirsRecursive(fsw, root, w.logger); err != nil {
			return err
		}
	}

	if w.opts.Interval > 0 {
		sched, err := w.schedule(w.opts.Interval)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { _ = sched.Shutdown() }()
	}

	debouncer := NewDebouncer(w.opts.Debounce, func() { w.Request(TriggerChange) })
	defer debouncer.Stop()

	// An in-flight build finishes before Run returns.
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		w.loop(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()
	w.Request(TriggerStart)

	w.logger.Info("Watching sources", slog.Any("roots", w.opts.Roots), slog.Duration("debounce", w.opts.Debounce))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping watcher")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, ev, debouncer)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) schedule(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { w.Request(TriggerInterval) }),
		gocron.WithName("periodic-rebuild"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to create periodic rebuild job: %w", err)
	}
	return sched, nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-w.requests:
			start := time.Now()
			if err := w.build(ctx, trigger); err != nil {
				w.logger.Warn("Rebuild failed", slog.String("trigger", trigger), logfields.Error(err))
				continue
			}
			w.logger.Info("Rebuild finished",
				slog.String("trigger", trigger),
				logfields.DurationMS(float64(time.Since(start).Milliseconds())))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event, debouncer *Debouncer) {
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(fsw, ev.Name, w.logger)
			debouncer.Trigger()
			return
		}
	}
	if !Relevant(ev.Name) {
		return
	}
	w.logger.Debug("Source change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	debouncer.Trigger()
}

// Relevant reports whether a change to path can alter a build: translation
// units and headers, ignoring editor scratch files.
func Relevant(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "#") || strings.HasSuffix(base, "~") {
		return false
	}
	if _, ok := source.KindForPath(path); ok {
		return true
	}
	return headerExts[strings.ToLower(filepath.Ext(path))]
}

func addDirsRecursive(w *fsnotify.Watcher, root string, logger *slog.Logger) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("watch root %s: %w", root, err)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}
