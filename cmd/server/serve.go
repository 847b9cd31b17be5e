package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"listeningtrends-go/internal/app"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the callback server",
	Long: `Run the HTTP server that hosts the redirect URI.

Visiting / or /login starts an authorization attempt; the authorization
server redirects back to /callback, where the code is exchanged and the
profile fetched.`,
	RunE: func(c *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}

		if err := application.Start(ctx); err != nil {
			return fmt.Errorf("application failed to start: %w", err)
		}

		<-ctx.Done()
		logger.Info("Shutdown signal received, initiating graceful shutdown")

		if err := application.Stop(context.Background()); err != nil {
			return fmt.Errorf("error during graceful shutdown: %w", err)
		}
		return nil
	},
}
