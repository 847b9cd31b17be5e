package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"listeningtrends-go/internal/app"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
)

var (
	noBrowser    bool
	loginTimeout time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in once and print the profile",
	Long: `Sign in to Spotify and print the user's profile.

This command starts the callback server, opens the authorization page in a
browser and waits for the redirect. Once the profile is fetched it is printed
as JSON and the server stops.

Use --no-browser flag to get a URL to open manually instead.`,
	RunE: func(c *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, loginTimeout)
		defer cancel()

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		if err := application.Start(ctx); err != nil {
			return fmt.Errorf("application failed to start: %w", err)
		}
		defer application.Stop(context.Background())

		authURL, err := application.BeginLogin(ctx)
		if err != nil {
			return fmt.Errorf("failed to start authorization: %w", err)
		}

		if noBrowser {
			fmt.Fprintf(c.OutOrStdout(), "Open this URL to sign in:\n\n  %s\n\n", authURL)
		} else if err := open.Run(authURL); err != nil {
			logger.WithError(err).Warn("Could not open a browser")
			fmt.Fprintf(c.OutOrStdout(), "Open this URL to sign in:\n\n  %s\n\n", authURL)
		}

		profile, err := application.WaitForResult(ctx)
		if err != nil {
			return fmt.Errorf("sign-in failed: %w", err)
		}

		enc := json.NewEncoder(c.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

func init() {
	loginCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "how long to wait for the redirect")
}
