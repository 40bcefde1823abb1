package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/fpmake/internal/build"
	"git.home.luguber.info/inful/fpmake/internal/logfields"
	"git.home.luguber.info/inful/fpmake/internal/metrics"
	"git.home.luguber.info/inful/fpmake/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Interval time.Duration `help:"Also rebuild on this interval (overrides watch.interval)"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	st, err := newStack(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Listen != "" && st.registry != nil {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(st),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				g.Logger.Error("Metrics server failed", logfields.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		g.Logger.Info("Serving metrics", "addr", cfg.Metrics.Listen)
	}

	interval := cfg.RebuildInterval()
	if w.Interval > 0 {
		interval = w.Interval
	}
	roots := make([]string, len(cfg.Sources.Directories))
	for i, dir := range cfg.Sources.Directories {
		roots[i] = cfg.Resolve(dir)
	}

	watcher := watch.New(watch.Options{
		Roots:    roots,
		Debounce: cfg.DebounceDuration(),
		Interval: interval,
	}, func(ctx context.Context, trigger string) error {
		out, err := st.service.Run(ctx, build.Request{Trigger: trigger})
		st.flushMetrics()
		if out != nil {
			printOutcome(out)
		}
		return err
	}).WithLogger(g.Logger)

	return watcher.Run(ctx)
}

func metricsMux(st *stack) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(st.registry))
	return mux
}
