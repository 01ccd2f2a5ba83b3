package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/clinicauth/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API and metrics listeners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := server.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			log.Info("clinicauth starting",
				zap.String("env", cfg.App.Env),
				zap.String("storage", cfg.Storage.Driver),
				zap.Bool("rate_limit", cfg.Rate.Enabled),
			)
			return app.Run(ctx)
		},
	}
}
