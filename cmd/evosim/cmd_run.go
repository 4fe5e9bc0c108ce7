package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/evosim/internal/config"
	"github.com/talgya/evosim/internal/experiment"
	"github.com/talgya/evosim/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single game and print its cooperation series",
		Long: `Run builds the configured population and game, plays
threshold + generations rounds and reports the recorded
cooperation and inspection levels.

With --save the run is written to the result store.`,
		Example: `  evosim run --config pggi.yaml
  evosim run --seed 7 --r 3.5 --save --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("r") {
				cfg.Game.R, _ = cmd.Flags().GetFloat64("r")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			s, err := experiment.Build(cfg)
			if err != nil {
				return err
			}
			res, err := experiment.RunOnce(cmd.Context(), s)
			if err != nil {
				return err
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				if err := withStore(cmd.Context(), cfg, func(db *persistence.DB) error {
					if err := db.SaveRun(cmd.Context(), res, cfg); err != nil {
						return err
					}
					return db.SaveMeta(cmd.Context(), "last_run", res.ID)
				}); err != nil {
					return fmt.Errorf("save run: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "run %s  variant=%s seed=%d agents=%d r=%g\n",
				res.ID, res.Variant, res.Seed, res.Agents, res.R)
			fmt.Fprintf(out, "mean cooperation %.4f  mean inspection %.4f  over %d generations\n",
				res.MeanCoop, res.MeanInsp, len(res.CoopLevel))
			if n := len(res.CoopLevel); n > 0 {
				fmt.Fprintf(out, "final cooperation %.4f  final inspection %.4f\n",
					res.CoopLevel[n-1], res.InspLevel[n-1])
			}
			return nil
		},
	}

	cmd.Flags().Float64("r", 0, "Override the multiplication factor")
	cmd.Flags().Bool("save", false, "Store the run in the result database")
	return cmd
}

// withStore opens the configured result database for the duration of fn.
func withStore(ctx context.Context, cfg *config.Config, fn func(*persistence.DB) error) error {
	if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	db, err := persistence.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Debug("database opened", "path", cfg.Storage.Path)
	return fn(db)
}
