package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seekmail/seekmail/internal/digest"
	"github.com/seekmail/seekmail/internal/instrumentation"
	"github.com/seekmail/seekmail/internal/logging"
	"github.com/seekmail/seekmail/internal/server"
)

func newDigestCmd() *cobra.Command {
	var (
		debugMode bool
		cfg       server.Config
		topN      int
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Job digest operations",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Search postings, rank them against the profile, and email a digest once",
		Long: `Run a single digest cycle outside the MCP server: search current job
postings, rank them against the configured profile, and email the top
matches to --digest-to. Suitable for cron when the server is not running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd.Context(), cfg, debugMode, topN)
		},
	}

	runCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	runCmd.Flags().StringVar(&cfg.CredsFile, "creds-file", "", "Path to the Google OAuth client credentials JSON (required)")
	runCmd.Flags().StringVar(&cfg.TokenFile, "token-file", "", "Path for the cached user token (default: user cache directory)")
	runCmd.Flags().StringVar(&cfg.JobsConfigFile, "jobs-config", "", "Path to the job postings provider config JSON (required)")
	runCmd.Flags().StringVar(&cfg.ProfileFile, "profile", "", "Path to the user profile JSON (required)")
	runCmd.Flags().StringVar(&cfg.DigestTo, "digest-to", "", "Destination address (required)")
	runCmd.Flags().IntVar(&topN, "top", 0, "Postings per digest (default 10)")
	_ = runCmd.MarkFlagRequired("creds-file")
	_ = runCmd.MarkFlagRequired("jobs-config")
	_ = runCmd.MarkFlagRequired("profile")
	_ = runCmd.MarkFlagRequired("digest-to")

	cmd.AddCommand(runCmd)
	return cmd
}

func runDigest(ctx context.Context, cfg server.Config, debugMode bool, topN int) error {
	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, level)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(runCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	sc, err := server.NewServerContext(runCtx, cfg, logger, provider)
	if err != nil {
		return err
	}
	defer sc.Shutdown()

	client, err := sc.Jobs()
	if err != nil {
		return err
	}
	profile, err := sc.Profile()
	if err != nil {
		return err
	}
	sender, err := sc.Gmail()
	if err != nil {
		return err
	}

	sched := digest.New(digest.Config{
		Profile: profile,
		To:      cfg.DigestTo,
		TopN:    topN,
	}, client, sender, logger)

	if err := sched.RunCycle(runCtx); err != nil {
		return fmt.Errorf("digest cycle failed: %w", err)
	}
	fmt.Printf("Digest sent to %s\n", cfg.DigestTo)
	return nil
}
