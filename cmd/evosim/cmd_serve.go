package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/evosim/internal/api"
	"github.com/talgya/evosim/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs and sweeps over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port, _ = cmd.Flags().GetInt("port")
			}
			rate, _ := cmd.Flags().GetInt("rate-limit")

			return withStore(cmd.Context(), cfg, func(db *persistence.DB) error {
				srv := &api.Server{Store: db, Port: cfg.API.Port, Version: version}
				if rate > 0 {
					srv.Limiter = api.NewRateLimiter(rate, time.Minute)
				}
				return srv.ListenAndServe(cmd.Context())
			})
		},
	}

	cmd.Flags().Int("port", 0, "Override the listen port")
	cmd.Flags().Int("rate-limit", 120, "Requests per minute per client (0 disables)")
	return cmd
}
