package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/kindred/internal/api"
	"github.com/talgya/kindred/internal/persistence"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation continuously behind the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			rt, err := build(cfg)
			if err != nil {
				return err
			}
			db, err := openDB(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			slog.Info("database opened", "path", cfg.Store.Path)
			_ = db.SaveMeta("seed", fmt.Sprint(cfg.Seed))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			subID, events := rt.sim.Subscribe()
			recorded := make(chan struct{})
			go func() {
				defer close(recorded)
				db.Record(ctx, events, cfg.Store.FlushInterval)
			}()
			go snapshotLoop(ctx, rt, db, cfg.Store.SnapshotInterval)

			srv := api.New(ctx, rt.sim, rt.eng, db, cfg.HTTP)
			srvErr := make(chan error, 1)
			go func() {
				err := srv.ListenAndServe(ctx, cfg.HTTP.Addr)
				if err != nil {
					slog.Error("HTTP server error", "error", err)
					stop()
				}
				srvErr <- err
			}()

			runErr := rt.eng.Run(ctx)
			stop()

			rt.sim.Unsubscribe(subID)
			<-recorded
			if err := db.SaveSnapshot(rt.sim.Snapshot()); err != nil {
				slog.Error("final snapshot failed", "error", err)
			}
			if err := <-srvErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func snapshotLoop(ctx context.Context, rt *runtime, db *persistence.DB, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := db.SaveSnapshot(rt.sim.Snapshot()); err != nil {
				slog.Error("snapshot failed", "error", err)
			}
		}
	}
}
