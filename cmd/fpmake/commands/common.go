package commands

import (
	"log/slog"
	"os"
	"runtime"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/fpmake/internal/build"
	"git.home.luguber.info/inful/fpmake/internal/config"
	"git.home.luguber.info/inful/fpmake/internal/eventstore"
	"git.home.luguber.info/inful/fpmake/internal/events"
	"git.home.luguber.info/inful/fpmake/internal/fingerprint"
	"git.home.luguber.info/inful/fpmake/internal/logfields"
	"git.home.luguber.info/inful/fpmake/internal/metrics"
	"git.home.luguber.info/inful/fpmake/internal/toolchain"
)

// Global holds state shared by subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"fpmake.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" default:"1" help:"Compile changed units and link the executable"`
	Plan    PlanCmd    `cmd:"" help:"List the units the next build would compile, without building"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild whenever sources change"`
	Clean   CleanCmd   `cmd:"" help:"Remove objects, the fingerprint cache and the executable"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"Show recent builds from the history database"`
}

// AfterApply runs after flag parsing; sets up a default logger until the
// configuration is loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig loads the configuration and replaces the logger with the
// configured one.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = cfg.Logging.NewLogger(os.Stderr, root.Verbose)
	slog.SetDefault(g.Logger)
	g.Logger.Debug("Configuration loaded", logfields.Path(root.Config), slog.String("config", cfg.String()))
	return cfg, nil
}

// stack is a wired build service plus what must be flushed or closed after use.
type stack struct {
	cfg      *config.Config
	service  *build.DefaultBuildService
	registry *prometheus.Registry
	closers  []func() error
	logger   *slog.Logger
}

// newStack wires the toolchain, cache, metrics and event sinks for cfg.
func newStack(cfg *config.Config, logger *slog.Logger) (*stack, error) {
	st := &stack{cfg: cfg, logger: logger}

	tc := toolchain.NewExec(cfg, runtime.GOOS).WithLogger(logger)
	store := fingerprint.NewFileStore(cfg.Resolve(cfg.Build.CacheFile)).WithLogger(logger)
	svc := build.NewBuildService(cfg, tc, store).WithLogger(logger)

	if cfg.Metrics.Textfile != "" || cfg.Metrics.Listen != "" {
		st.registry = prometheus.NewRegistry()
		svc.WithRecorder(metrics.NewPrometheusRecorder(st.registry))
	}

	var sinks events.Fanout
	if cfg.History.Database != "" {
		es, err := eventstore.NewSQLiteStore(cfg.Resolve(cfg.History.Database))
		if err != nil {
			logger.Warn("Build history disabled", logfields.Error(err))
		} else {
			sinks = append(sinks, events.NewStoreEmitter(es))
			st.closers = append(st.closers, es.Close)
		}
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			logger.Warn("Build notifications disabled", logfields.Error(err))
		} else {
			sinks = append(sinks, pub)
			st.closers = append(st.closers, pub.Close)
		}
	}
	if len(sinks) > 0 {
		svc.WithEmitter(sinks)
	}

	st.service = svc
	return st, nil
}

// flushMetrics writes the textfile export, if configured.
func (s *stack) flushMetrics() {
	if s.registry == nil || s.cfg.Metrics.Textfile == "" {
		return
	}
	path := s.cfg.Resolve(s.cfg.Metrics.Textfile)
	if err := metrics.WriteTextfile(path, s.registry); err != nil {
		s.logger.Warn("Failed to write metrics textfile", logfields.Path(path), logfields.Error(err))
	}
}

func (s *stack) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Warn("Close failed", logfields.Error(err))
		}
	}
}
