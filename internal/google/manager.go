package google

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/seekmail/seekmail/internal/apierr"
	"github.com/seekmail/seekmail/internal/logging"
)

// State is the token lifecycle state, exposed for logging and tests.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthorizing     State = "authorizing"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
	StateRevoked         State = "revoked"
)

// refreshMargin is how close to expiry a token is still handed out. Tokens
// inside the margin are refreshed before use so no call starts with a token
// about to die mid-flight.
const refreshMargin = 2 * time.Minute

// defaultAuthTimeout bounds the user-in-the-loop consent wait.
const defaultAuthTimeout = 5 * time.Minute

// TokenManager owns the OAuth credential lifecycle: initial consent, refresh,
// revocation detection, persistence. All API clients obtain tokens through
// it; it is the only writer of the token file.
type TokenManager struct {
	conf   *oauth2.Config
	store  *Store
	logger *slog.Logger

	// AuthTimeout bounds the interactive consent flow. Zero means
	// defaultAuthTimeout.
	AuthTimeout time.Duration

	// OnRefresh, when set, observes refresh outcomes (for metrics).
	OnRefresh func(ok bool)

	mu    sync.RWMutex
	cred  *Credential
	state State

	refreshGroup singleflight.Group
}

// NewTokenManager wires the manager to its config and store. Any credential
// already on disk is picked up lazily on first use.
func NewTokenManager(conf *oauth2.Config, store *Store, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		conf:   conf,
		store:  store,
		logger: logging.WithService(logger, "oauth"),
		state:  StateUnauthenticated,
	}
}

// State returns the current lifecycle state.
func (m *TokenManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Token returns a valid access token, refreshing or running the consent flow
// as needed. Concurrent callers needing a refresh share a single in-flight
// refresh; refresh is not idempotent against the authorization server within
// a short window, so duplicates must never be issued.
func (m *TokenManager) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := m.validToken(); tok != nil {
		return tok, nil
	}

	v, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		// A racing caller may have completed the refresh already.
		if tok := m.validToken(); tok != nil {
			return tok, nil
		}
		return m.renew(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// HTTPClient returns an http client that authorizes every request through
// the manager, so refreshes stay serialized and persisted.
func (m *TokenManager) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, managerSource{ctx: ctx, m: m})
}

// Authorize forces the interactive consent flow regardless of stored state,
// for the standalone auth command.
func (m *TokenManager) Authorize(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.consent(ctx)
	})
	return err
}

// validToken returns a copy of the in-memory token when it is safely outside
// the refresh margin, else nil.
func (m *TokenManager) validToken() *oauth2.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil || m.cred.AccessToken == "" {
		return nil
	}
	if time.Until(m.cred.Expiry) < refreshMargin {
		return nil
	}
	return m.cred.Token()
}

// renew loads, refreshes, or acquires a credential. Runs inside the
// singleflight gate.
func (m *TokenManager) renew(ctx context.Context) (*oauth2.Token, error) {
	cred := m.loadIfNeeded()

	// A credential just loaded from disk may still be perfectly valid; only
	// refresh when it is actually inside the margin.
	if tok := m.validToken(); tok != nil {
		return tok, nil
	}

	if cred == nil || cred.RefreshToken == "" {
		return m.consent(ctx)
	}

	m.setState(StateRefreshing)
	m.logger.Debug("refreshing access token", logging.Operation("refresh"))

	// An empty access token forces the oauth2 transport to hit the refresh
	// endpoint instead of trusting our soon-to-expire token.
	src := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		err = apierr.Classify("oauth.refresh", err)
		if m.OnRefresh != nil {
			m.OnRefresh(false)
		}
		if apierr.Is(err, apierr.KindReauthRequired) {
			// The refresh token is dead; drop the credential so no caller
			// can keep using the stale access token.
			m.setRevoked()
			m.logger.Warn("refresh token revoked; re-authorization required",
				logging.Operation("refresh"), logging.Err(err))
			return nil, err
		}
		m.setState(StateAuthenticated)
		m.logger.Warn("token refresh failed", logging.Operation("refresh"), logging.Err(err))
		return nil, err
	}

	next := FromToken(tok, m.conf.Scopes, cred)
	if err := m.commit(next); err != nil {
		// The expiry on disk must match the token in memory; a failed
		// persist therefore fails the whole refresh.
		return nil, err
	}
	if m.OnRefresh != nil {
		m.OnRefresh(true)
	}
	m.logger.Info("access token refreshed",
		logging.Operation("refresh"),
		slog.Time("expiry", next.Expiry))
	return next.Token(), nil
}

// consent runs the interactive flow and persists the grant.
func (m *TokenManager) consent(ctx context.Context) (*oauth2.Token, error) {
	m.setState(StateAuthorizing)

	timeout := m.AuthTimeout
	if timeout == 0 {
		timeout = defaultAuthTimeout
	}
	authCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.logger.Info("starting interactive authorization", logging.Operation("authorize"))
	tok, err := authorize(authCtx, m.conf)
	if err != nil {
		m.setState(StateUnauthenticated)
		m.logger.Warn("authorization failed", logging.Operation("authorize"), logging.Err(err))
		return nil, err
	}

	next := FromToken(tok, m.conf.Scopes, nil)
	if err := m.commit(next); err != nil {
		return nil, err
	}
	m.logger.Info("authorization complete",
		logging.Operation("authorize"),
		slog.String("token", logging.SanitizeToken(next.AccessToken)))
	return next.Token(), nil
}

// commit persists the credential and only then installs it in memory, so the
// in-memory expiry is never ahead of what survived to disk.
func (m *TokenManager) commit(c *Credential) error {
	if err := m.store.Save(c); err != nil {
		m.setState(StateUnauthenticated)
		return apierr.Wrap(apierr.KindTransient, "oauth.persist", err)
	}
	m.mu.Lock()
	m.cred = c
	m.state = StateAuthenticated
	m.mu.Unlock()
	return nil
}

func (m *TokenManager) loadIfNeeded() *Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred != nil {
		return m.cred
	}
	cred, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			m.logger.Warn("stored credential unreadable", logging.Err(err))
		}
		return nil
	}
	m.cred = cred
	m.state = StateAuthenticated
	return cred
}

func (m *TokenManager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *TokenManager) setRevoked() {
	m.mu.Lock()
	m.cred = nil
	m.state = StateRevoked
	m.mu.Unlock()
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear revoked credential", logging.Err(err))
	}
}

// managerSource adapts the manager to oauth2.TokenSource for HTTPClient.
type managerSource struct {
	ctx context.Context
	m   *TokenManager
}

func (s managerSource) Token() (*oauth2.Token, error) {
	return s.m.Token(s.ctx)
}
