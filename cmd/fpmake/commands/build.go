package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/fpmake/internal/build"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Jobs int `short:"j" help:"Maximum concurrent compile jobs (overrides build.jobs)"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if b.Jobs > 0 {
		cfg.Build.Jobs = b.Jobs
	}

	st, err := newStack(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out, err := st.service.Run(ctx, build.Request{Trigger: "cli"})
	st.flushMetrics()
	if out != nil {
		printOutcome(out)
	}
	return err
}

func printOutcome(out *build.Outcome) {
	compiled := out.CompiledUnits()
	failed := out.FailedUnits()
	switch out.Status {
	case build.StatusSuccess:
		fmt.Printf("%s: %d units, %d compiled, linked %s\n", out.Status, out.Units, len(compiled), out.Output)
	case build.StatusCompileFailed:
		fmt.Printf("%s: %d of %d compile jobs failed, link skipped\n", out.Status, len(failed), len(out.Jobs))
		for _, rel := range failed {
			fmt.Printf("  failed: %s\n", rel)
		}
	default:
		fmt.Printf("%s\n", out.Status)
	}
}
