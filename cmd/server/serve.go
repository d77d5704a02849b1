package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lineage/internal/platform/httpserver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpserver.New(cfg.Server.Addr, a.router())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if relay := a.relay(); relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	return g.Wait()
}
