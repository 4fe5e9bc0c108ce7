package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/talgya/evosim/internal/experiment"
	"github.com/talgya/evosim/internal/persistence"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep the multiplication factor and store the averaged curve",
		Long: `Sweep plays realizations x runs games at every r in
[r_min, r_max) and stores the mean cooperation and inspection
levels per point.

An interrupt stops the sweep between runs; the points already
finished are still stored.`,
		Example: `  evosim sweep --config network.yaml
  evosim sweep --r-min 1 --r-max 6 --r-step 0.25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("r-min") {
				cfg.Sweep.RMin, _ = flags.GetFloat64("r-min")
			}
			if flags.Changed("r-max") {
				cfg.Sweep.RMax, _ = flags.GetFloat64("r-max")
			}
			if flags.Changed("r-step") {
				cfg.Sweep.RStep, _ = flags.GetFloat64("r-step")
			}
			if err := cfg.Sweep.Validate(); err != nil {
				return err
			}

			s, err := experiment.Build(cfg)
			if err != nil {
				return err
			}

			res, sweepErr := experiment.Sweep(cmd.Context(), s, cfg.Sweep, nil)
			if res == nil {
				return sweepErr
			}
			if errors.Is(sweepErr, context.Canceled) {
				slog.Warn("sweep interrupted", "points", len(res.Points))
			} else if sweepErr != nil {
				return sweepErr
			}

			if len(res.Points) > 0 {
				// The command context may already be cancelled here.
				saveCtx := context.WithoutCancel(cmd.Context())
				if err := withStore(saveCtx, cfg, func(db *persistence.DB) error {
					return db.SaveSweep(saveCtx, res, cfg)
				}); err != nil {
					return fmt.Errorf("save sweep: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := flags.GetBool("json"); jsonOut {
				if err := printJSON(out, res); err != nil {
					return err
				}
				return sweepErr
			}

			fmt.Fprintf(out, "sweep %s  variant=%s seed=%d agents=%d z=%g\n",
				res.ID, res.Variant, res.Seed, res.Agents, res.Degree)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "r\teta\tcoop\tsd\tinsp\tsd")
			for _, p := range res.Points {
				fmt.Fprintf(w, "%.3f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
					p.R, p.Eta, p.MeanCoop, p.StdCoop, p.MeanInsp, p.StdInsp)
			}
			w.Flush()
			return sweepErr
		},
	}

	cmd.Flags().Float64("r-min", 0, "Override the first r of the sweep")
	cmd.Flags().Float64("r-max", 0, "Override the exclusive upper bound of r")
	cmd.Flags().Float64("r-step", 0, "Override the r increment")
	return cmd
}
