package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/seekmail/seekmail/internal/digest"
	"github.com/seekmail/seekmail/internal/instrumentation"
	"github.com/seekmail/seekmail/internal/logging"
	"github.com/seekmail/seekmail/internal/server"
	"github.com/seekmail/seekmail/internal/tools/gmail_tools"
	"github.com/seekmail/seekmail/internal/tools/jobs_tools"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode      bool
		cfg            server.Config
		metricsEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server on stdio. It exposes
Gmail account management (email, labels, folders, filters) and job-search
tools (posting search, profile matching, digest) for AI assistants.

Credentials:
  --creds-file points at the Google OAuth client JSON. The user token is
  cached at the --token-file path (default: the user cache directory) and
  acquired interactively on first use; run 'seekmail auth' to authorize
  ahead of time.

Job search:
  --jobs-config points at a JSON file holding the postings provider API
  key, --profile at the user profile used for matching. Both are optional;
  the jobs tools report a configuration error when unset.

Digest:
  With --digest-to set (and jobs config plus profile present), a background
  scheduler emails a ranked digest of fresh postings every --digest-interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, debugMode, metricsEnabled)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.CredsFile, "creds-file", "", "Path to the Google OAuth client credentials JSON (required)")
	cmd.Flags().StringVar(&cfg.TokenFile, "token-file", "", "Path for the cached user token (default: user cache directory)")
	cmd.Flags().StringVar(&cfg.JobsConfigFile, "jobs-config", "", "Path to the job postings provider config JSON")
	cmd.Flags().StringVar(&cfg.ProfileFile, "profile", "", "Path to the user profile JSON for matching and digests")
	cmd.Flags().StringVar(&cfg.DigestTo, "digest-to", "", "Destination address for the periodic job digest. Empty disables the scheduler.")
	cmd.Flags().DurationVar(&cfg.DigestInterval, "digest-interval", digest.DefaultInterval, "Interval between digest deliveries")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Serve Prometheus metrics on a dedicated port when instrumentation is enabled")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address")
	_ = cmd.MarkFlagRequired("creds-file")

	return cmd
}

func runServe(ctx context.Context, cfg server.Config, debugMode, metricsEnabled bool) error {
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the MCP wire; everything else goes to stderr.
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, level)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	sc, err := server.NewServerContext(shutdownCtx, cfg, logger, provider)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer sc.Shutdown()

	var metricsServer *server.MetricsServer
	if metricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
		logger.Info("metrics server listening", slog.String("addr", metricsServer.Addr()))
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer stopCancel()
			if err := metricsServer.Shutdown(stopCtx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	if cfg.DigestTo != "" {
		if err := startDigestScheduler(sc, cfg); err != nil {
			return fmt.Errorf("failed to start digest scheduler: %w", err)
		}
	}

	s := mcpserver.NewMCPServer(
		"seekmail",
		version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := registerAllTools(s, sc); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	return runStdioServer(shutdownCtx, s, logger)
}

// startDigestScheduler resolves the digest dependencies eagerly so a
// misconfiguration surfaces at startup, not at the first 24h mark.
func startDigestScheduler(sc *server.ServerContext, cfg server.Config) error {
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
		Profile:  profile,
		To:       cfg.DigestTo,
		Interval: cfg.DigestInterval,
	}, client, sender, sc.Logger())
	sched.OnCycle = func(ok bool) {
		status := instrumentation.StatusError
		if ok {
			status = instrumentation.StatusSuccess
		}
		sc.Metrics().RecordDigestCycle(sc.Context(), status)
	}

	go sched.Run(sc.Context())
	sc.Logger().Info("digest scheduler started",
		logging.Recipient(cfg.DigestTo),
		slog.Duration("interval", cfg.DigestInterval))
	return nil
}

// registerAllTools wires every tool group into the MCP server.
func registerAllTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func(*mcpserver.MCPServer, *server.ServerContext) error
	}

	registrations := []toolRegistration{
		{"email tools", gmail_tools.RegisterEmailTools},
		{"label tools", gmail_tools.RegisterLabelTools},
		{"filter tools", gmail_tools.RegisterFilterTools},
		{"jobs tools", jobs_tools.RegisterJobsTools},
	}

	for _, reg := range registrations {
		if err := reg.register(s, sc); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return nil
}

// runStdioServer serves MCP over stdio until the client disconnects or a
// shutdown signal arrives.
func runStdioServer(ctx context.Context, s *mcpserver.MCPServer, logger *slog.Logger) error {
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- mcpserver.ServeStdio(s)
	}()

	logger.Info("MCP server listening on stdio")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		// Give the stdio server a moment to drain; it ends when stdin closes.
		select {
		case <-serverDone:
		case <-time.After(2 * time.Second):
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	}
}
