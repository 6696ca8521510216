package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seekmail/seekmail/internal/gmail"
	"github.com/seekmail/seekmail/internal/google"
	"github.com/seekmail/seekmail/internal/instrumentation"
	"github.com/seekmail/seekmail/internal/jobs"
)

// Config is the process configuration resolved from flags.
type Config struct {
	// CredsFile is the OAuth application credentials JSON.
	CredsFile string
	// TokenFile is where the user token is persisted. Empty selects the
	// default cache location.
	TokenFile string
	// JobsConfigFile is the postings provider key file.
	JobsConfigFile string
	// ProfileFile is the user profile JSON for matching and digests.
	ProfileFile string
	// DigestTo is the digest destination address. Empty disables the
	// scheduler.
	DigestTo string
	// DigestInterval overrides the 24h default when positive.
	DigestInterval time.Duration
	// MetricsAddr is the metrics listener address.
	MetricsAddr string
}

// ServerContext owns the shared dependencies behind the tool surface. Gmail
// and jobs clients are built lazily on first use so the server can start
// before any credential exists; the token manager then runs the consent flow
// on demand.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *slog.Logger

	provider *instrumentation.Provider
	tm       *google.TokenManager

	mu          sync.Mutex
	gmailClient *gmail.Client
	folders     *gmail.Folders
	filters     *gmail.Engine
	jobsClient  *jobs.Client
	profile     *jobs.UserProfile
	shutdown    bool
}

// NewServerContext wires the token manager and defers everything else.
func NewServerContext(ctx context.Context, cfg Config, logger *slog.Logger, provider *instrumentation.Provider) (*ServerContext, error) {
	conf, err := google.LoadAppConfig(cfg.CredsFile, google.DefaultScopes)
	if err != nil {
		return nil, err
	}
	tokenPath := cfg.TokenFile
	if tokenPath == "" {
		tokenPath = google.DefaultTokenPath()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		tm:       google.NewTokenManager(conf, google.NewStore(tokenPath), logger),
	}
	sc.tm.OnRefresh = func(ok bool) {
		status := instrumentation.StatusError
		if ok {
			status = instrumentation.StatusSuccess
		}
		provider.Metrics().RecordTokenRefresh(sc.ctx, status)
	}
	return sc, nil
}

// Context returns the server's lifetime context.
func (sc *ServerContext) Context() context.Context { return sc.ctx }

// Config returns the resolved process configuration.
func (sc *ServerContext) Config() Config { return sc.cfg }

// Logger returns the root logger.
func (sc *ServerContext) Logger() *slog.Logger { return sc.logger }

// TokenManager exposes the OAuth lifecycle, for the auth subcommand.
func (sc *ServerContext) TokenManager() *google.TokenManager { return sc.tm }

// Metrics returns the metrics recorder.
func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.provider.Metrics() }

// Gmail returns the shared mail gateway, building it on first use.
func (sc *ServerContext) Gmail() (*gmail.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.gmailClient != nil {
		return sc.gmailClient, nil
	}

	observe := func(op string, d time.Duration, err error) {
		sc.provider.Metrics().RecordUpstreamOperation(sc.ctx,
			instrumentation.ServiceGmail, op, instrumentation.StatusOf(err), d)
	}
	client, err := gmail.NewClient(sc.ctx, sc.tm, sc.logger, observe)
	if err != nil {
		return nil, err
	}
	sc.gmailClient = client
	return client, nil
}

// Folders returns the virtual-folder view over the mail gateway.
func (sc *ServerContext) Folders() (*gmail.Folders, error) {
	client, err := sc.Gmail()
	if err != nil {
		return nil, err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.folders == nil {
		sc.folders = gmail.NewFolders(client, sc.logger)
	}
	return sc.folders, nil
}

// Filters returns the filter engine over the mail gateway.
func (sc *ServerContext) Filters() (*gmail.Engine, error) {
	client, err := sc.Gmail()
	if err != nil {
		return nil, err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.filters == nil {
		sc.filters = gmail.NewEngine(client, sc.logger)
	}
	return sc.filters, nil
}

// Jobs returns the postings client, reading the key file on first use.
func (sc *ServerContext) Jobs() (*jobs.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.jobsClient != nil {
		return sc.jobsClient, nil
	}
	if sc.cfg.JobsConfigFile == "" {
		return nil, fmt.Errorf("no jobs config file configured; pass --jobs-config")
	}

	cfg, err := jobs.LoadConfig(sc.cfg.JobsConfigFile)
	if err != nil {
		return nil, err
	}
	observe := func(op string, d time.Duration, err error) {
		sc.provider.Metrics().RecordUpstreamOperation(sc.ctx,
			instrumentation.ServiceJobs, op, instrumentation.StatusOf(err), d)
	}
	sc.jobsClient = jobs.NewClient(cfg, nil, sc.logger, observe)
	return sc.jobsClient, nil
}

// Profile returns the user profile, loading it once.
func (sc *ServerContext) Profile() (jobs.UserProfile, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.profile != nil {
		return *sc.profile, nil
	}
	if sc.cfg.ProfileFile == "" {
		return jobs.UserProfile{}, fmt.Errorf("no profile file configured; pass --profile")
	}
	p, err := jobs.LoadProfile(sc.cfg.ProfileFile)
	if err != nil {
		return jobs.UserProfile{}, err
	}
	sc.profile = &p
	return p, nil
}

// Shutdown cancels the server context; in-flight operations observe it
// through their contexts.
func (sc *ServerContext) Shutdown() {
	sc.mu.Lock()
	sc.shutdown = true
	sc.mu.Unlock()
	sc.cancel()
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.shutdown
}
