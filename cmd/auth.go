package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seekmail/seekmail/internal/google"
	"github.com/seekmail/seekmail/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var (
		credsFile string
		tokenFile string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Run the interactive Google authorization flow",
		Long: `Run the OAuth consent flow in a browser and cache the resulting token.

The MCP server runs this flow on demand, but authorizing ahead of time
avoids a browser prompt in the middle of a tool call.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := logging.New(os.Stderr, slog.LevelInfo)

			conf, err := google.LoadAppConfig(credsFile, google.DefaultScopes)
			if err != nil {
				return err
			}
			path := tokenFile
			if path == "" {
				path = google.DefaultTokenPath()
			}

			tm := google.NewTokenManager(conf, google.NewStore(path), logger)
			tm.AuthTimeout = timeout
			if err := tm.Authorize(ctx); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Printf("Authorization complete. Token cached at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&credsFile, "creds-file", "", "Path to the Google OAuth client credentials JSON (required)")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "Path for the cached user token (default: user cache directory)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the browser consent")
	_ = cmd.MarkFlagRequired("creds-file")

	return cmd
}
