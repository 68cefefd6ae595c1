// Package cli wires the kindred commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/talgya/kindred/internal/config"
)

type rootOptions struct {
	configPath string
	seed       int64
	logLevel   string
	logJSON    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "kindred",
		Short:         "Tick-driven social simulation of families and factions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setupLogging(cmd.ErrOrStderr(), cmd.Flags().Changed("log-json"))
		},
	}
	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (defaults when empty)")
	f.Int64Var(&opts.seed, "seed", 0, "override the configured seed")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	f.BoolVar(&opts.logJSON, "log-json", false, "log JSON lines (default when stderr is not a terminal)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newInspectCmd(opts))
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *rootOptions) setupLogging(w io.Writer, explicitJSON bool) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	asJSON := o.logJSON
	if !explicitJSON {
		f, ok := w.(*os.File)
		asJSON = !ok || !isatty.IsTerminal(f.Fd())
	}
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, hopts)
	if asJSON {
		h = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = o.seed
		cfg.Normalize()
	}
	return cfg, nil
}
