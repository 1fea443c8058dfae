package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/lantrn/internal/api"
	"github.com/mattjoyce/lantrn/internal/log"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only inspection API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			if a.cfg.API.APIKey == "" {
				return fmt.Errorf("api.api_key must be set to serve the API")
			}
			if listen == "" {
				listen = a.cfg.API.Listen
			}

			ids, err := a.mgr.Discover(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("workspaces discovered", "count", len(ids))

			var history api.History
			if a.ledger != nil {
				history = a.ledger
			}
			srv := api.New(api.Config{Listen: listen, APIKey: a.cfg.API.APIKey}, a.mgr, history, log.WithComponent("api"))
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default api.listen)")
	return cmd
}
