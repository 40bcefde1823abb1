package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/fpmake/internal/detect"
)

// PlanCmd implements the 'plan' command.
type PlanCmd struct{}

func (p *PlanCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	st, err := newStack(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	plan, err := st.service.Plan(context.Background())
	if err != nil {
		return err
	}
	printPlan(os.Stdout, plan.Units, plan.Changes)
	return nil
}

func printPlan(w io.Writer, units int, changes []detect.Change) {
	if len(changes) == 0 {
		_, _ = fmt.Fprintf(w, "up to date: %d units, nothing to compile\n", units)
		return
	}
	for _, c := range changes {
		_, _ = fmt.Fprintf(w, "%-8s %s\n", c.Reason, c.File.Rel)
	}
	_, _ = fmt.Fprintf(w, "%d of %d units would be compiled\n", len(changes), units)
}
