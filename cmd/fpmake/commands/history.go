package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/fpmake/internal/eventstore"
	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of builds to show" default:"10"`
	JSON  bool `help:"Print JSON instead of a table"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if cfg.History.Database == "" {
		return errors.ConfigError("build history is disabled (history.database is empty)").Build()
	}
	store, err := eventstore.NewSQLiteStore(cfg.Resolve(cfg.History.Database))
	if err != nil {
		return errors.RuntimeError("failed to open history database").WithCause(err).Build()
	}
	defer func() { _ = store.Close() }()

	history, err := eventstore.History(context.Background(), store, h.Limit)
	if err != nil {
		return errors.RuntimeError("failed to read build history").WithCause(err).Build()
	}
	if h.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	return printHistory(os.Stdout, history)
}

func printHistory(w io.Writer, history []*eventstore.BuildSummary) error {
	if len(history) == 0 {
		_, err := fmt.Fprintln(w, "no builds recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BUILD\tSTARTED\tDURATION\tTRIGGER\tUNITS\tCOMPILED\tSTATUS\tDETAIL")
	for _, b := range history {
		detail := ""
		switch {
		case len(b.FailedUnits) > 0:
			detail = "failed: " + strings.Join(b.FailedUnits, ", ")
		case b.ErrorStage != "":
			detail = b.ErrorStage + ": " + b.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			shortID(b.BuildID),
			b.StartedAt.Local().Format(time.DateTime),
			b.Duration.Round(time.Millisecond),
			b.Trigger,
			b.Units,
			b.Compiled,
			b.Status,
			detail)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
