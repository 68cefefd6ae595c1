package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/kindred/internal/engine"
	"github.com/talgya/kindred/internal/persistence"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		ticks  int
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a headless simulation for a fixed number of ticks and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			rt, err := build(cfg)
			if err != nil {
				return err
			}

			var db *persistence.DB
			if dbPath != "" {
				if db, err = openDB(dbPath); err != nil {
					return err
				}
				defer db.Close()
				_ = db.SaveMeta("seed", fmt.Sprint(cfg.Seed))
			}

			var recorded chan struct{}
			subID := 0
			if db != nil {
				var ch <-chan engine.Event
				subID, ch = rt.sim.Subscribe()
				recorded = make(chan struct{})
				go func() {
					defer close(recorded)
					db.Record(context.Background(), ch, cfg.Store.FlushInterval)
				}()
			}

			start := time.Now()
			rt.eng.Advance(ticks)
			elapsed := time.Since(start)

			if db != nil {
				rt.sim.Unsubscribe(subID)
				<-recorded
				if err := db.SaveSnapshot(rt.sim.Snapshot()); err != nil {
					return err
				}
			}
			slog.Info("run finished", "ticks", ticks, "elapsed", elapsed)
			return summarize(cmd.OutOrStdout(), rt.sim.Snapshot(), len(rt.sim.Chronicle()), elapsed)
		},
	}
	cmd.Flags().IntVarP(&ticks, "ticks", "n", engine.TicksPerSimDay, "ticks to run")
	cmd.Flags().StringVar(&dbPath, "db", "", "record the chronicle and a final snapshot to this SQLite file")
	return cmd
}

func openDB(path string) (*persistence.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func summarize(out io.Writer, snap *engine.Snapshot, chronicled int, elapsed time.Duration) error {
	st := snap.Stats
	fmt.Fprintf(out, "%s ticks (%s, %s, %s)", humanize.Comma(int64(snap.Tick)), snap.SimTime, snap.Season, snap.Weather)
	if elapsed > 0 {
		fmt.Fprintf(out, " in %s", elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%d groups, %d actors, %d live alliances, %d negotiations, %d migrations, %d rituals, %d special events\n",
		st.Groups, st.Actors, st.LiveAlliances, st.Negotiations, st.Migrations, st.Rituals, st.SpecialEvents)
	fmt.Fprintf(out, "%s chronicle events retained\n\n", humanize.Comma(int64(chronicled)))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tMEMBERS\tHONOR\tSTABILITY\tCOHESION\tTENSION\tLEADER\tTRADITIONS")
	for _, g := range snap.Groups {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%d\n",
			g.ID, g.Members, g.Honor, g.Stability, g.Cohesion, g.Tension, g.Leader, len(g.Traditions))
	}
	return tw.Flush()
}
