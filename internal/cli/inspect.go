package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/kindred/internal/engine"
	"github.com/talgya/kindred/internal/persistence"
)

func newInspectCmd(root *rootOptions) *cobra.Command {
	var (
		dbPath   string
		limit    int
		category string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a recorded chronicle database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := root.load(cmd)
				if err != nil {
					return err
				}
				dbPath = cfg.Store.Path
			}
			db, err := persistence.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			out := cmd.OutOrStdout()

			counts, err := db.CountByCategory()
			if err != nil {
				return err
			}
			total := 0
			for _, c := range counts {
				total += c.Count
			}
			seed, _ := db.GetMeta("seed")
			fmt.Fprintf(out, "%s: %s events, seed %s\n", dbPath, humanize.Comma(int64(total)), seed)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, c := range counts {
				fmt.Fprintf(tw, "  %s\t%s\n", c.Category, humanize.Comma(int64(c.Count)))
			}
			tw.Flush()

			var recent []engine.Event
			if category != "" {
				recent, err = db.EventsByCategory(category, limit)
			} else {
				recent, err = db.RecentEvents(limit)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nrecent:\n")
			for _, e := range recent {
				fmt.Fprintf(out, "  [%s] %-10s %s\n", engine.SimTime(e.Tick), e.Category, e.Description)
			}

			snap, err := db.LatestSnapshot()
			if errors.Is(err, persistence.ErrNoSnapshot) {
				fmt.Fprintln(out, "\nno snapshot recorded")
				return nil
			}
			if err != nil {
				return err
			}
			n, _ := db.SnapshotCount()
			fmt.Fprintf(out, "\nlatest of %d snapshots:\n", n)
			return summarize(out, snap, snap.Stats.ChronicleLength, 0)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (defaults to store.path)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "recent events to list")
	cmd.Flags().StringVar(&category, "category", "", "only list events of this category")
	return cmd
}
