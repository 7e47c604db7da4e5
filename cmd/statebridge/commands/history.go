package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/journal"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	UID   string `arg:"" optional:"" help:"State uid to show; omit for one summary line per uid"`
	Limit int    `short:"n" help:"Maximum entries to print (0 prints all)" default:"20"`
	Path  string `help:"Journal database path (overrides journal.path)"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	path := h.Path
	if path == "" {
		cfg, err := loadConfig(g, root, "")
		if err != nil {
			return err
		}
		path = cfg.Journal.Path
	}
	if path == "" {
		return ferrors.ConfigurationError("no journal configured (set journal.path or --path)").Build()
	}
	return runHistory(context.Background(), path, h.UID, h.Limit, g.Out)
}

func runHistory(ctx context.Context, path, uid string, limit int, out io.Writer) error {
	store, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if uid == "" {
		summaries, err := store.Summaries(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "UID\tENTRIES\tGENERATION\tREASON\tLAST SEEN")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
				s.UID, s.Entries, s.LastGeneration, s.LastReason, s.LastSeen.Format(time.RFC3339))
		}
		return tw.Flush()
	}

	entries, err := store.History(ctx, uid, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return ferrors.NotFoundError("no journal entries").WithContext("uid", uid).Build()
	}
	fmt.Fprintln(tw, "ID\tGENERATION\tREASON\tTIME\tPAYLOAD")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
			e.ID, e.Generation, e.Reason, e.Timestamp.Format(time.RFC3339), e.Payload)
	}
	return tw.Flush()
}
