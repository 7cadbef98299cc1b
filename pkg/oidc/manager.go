package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"apisession/pkg/logging"
	"apisession/pkg/secretstore"
)

// refreshSkew is how far ahead of expiry a token counts as stale. It
// absorbs clock skew between client and provider and ensures a token is
// still valid when the request it authorizes reaches the server.
const refreshSkew = 30 * time.Second

// State describes where the token manager is in its lifecycle.
type State int

const (
	// StateNoToken means no credential has been obtained yet.
	StateNoToken State = iota

	// StateAuthorizing means an interactive login is in progress.
	StateAuthorizing

	// StateAuthorized means a usable credential is held.
	StateAuthorized

	// StateRefreshing means a refresh request is in flight.
	StateRefreshing

	// StateExpired means the credential can no longer be refreshed and a
	// new login is required.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateNoToken:
		return "no-token"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// TokenManager obtains access tokens and keeps them fresh.
//
// AccessToken is the hot path: it returns the cached token while it is
// fresh and refreshes it ahead of expiry otherwise. Concurrent callers
// needing a refresh are collapsed into a single token endpoint request and
// all receive its result.
type TokenManager struct {
	mu         sync.RWMutex
	opts       Options
	httpClient *http.Client
	metadata   *Metadata
	token      *oauth2.Token
	state      State
	storeKey   string
	watcher    *secretstore.Watcher
	sessionID  string

	refreshGroup singleflight.Group
}

// NewTokenManager creates a token manager for the given provider options.
func NewTokenManager(opts Options) (*TokenManager, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m := &TokenManager{
		opts:       opts,
		httpClient: opts.httpClient(),
		state:      StateNoToken,
		storeKey:   secretstore.Key(opts.Authority, opts.ClientID),
		sessionID:  uuid.NewString(),
	}

	if opts.WatchStore {
		if fileStore, ok := opts.Store.(*secretstore.FileStore); ok {
			m.watcher = secretstore.NewWatcher(fileStore, m.storeKey, m.reloadFromStore)
			if err := m.watcher.Start(); err != nil {
				return nil, fmt.Errorf("failed to start credential watcher: %w", err)
			}
		}
	}

	return m, nil
}

// State returns the current lifecycle state.
func (m *TokenManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Authority returns the issuer URL this manager authenticates against.
func (m *TokenManager) Authority() string {
	return m.opts.Authority
}

// Close releases background resources.
func (m *TokenManager) Close() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
}

// Authorize runs the interactive browser login: it opens the provider's
// authorization page and waits for the callback, bounded by the configured
// login timeout. On success the manager holds a fresh credential.
func (m *TokenManager) Authorize(ctx context.Context) error {
	m.mu.Lock()
	previous := m.state
	m.state = StateAuthorizing
	m.mu.Unlock()

	token, err := m.runAuthorizationFlow(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = previous
		m.mu.Unlock()
		return err
	}

	m.adoptToken(token)
	logging.Info("OIDC", "Session %s: interactive login with %s completed", m.sessionID, m.opts.Authority)
	return nil
}

func (m *TokenManager) runAuthorizationFlow(ctx context.Context) (*oauth2.Token, error) {
	metadata, err := m.ensureMetadata(ctx)
	if err != nil {
		return nil, err
	}

	pkce, err := generatePKCE()
	if err != nil {
		return nil, err
	}
	state, err := generateState()
	if err != nil {
		return nil, err
	}

	flowCtx, cancel := context.WithTimeout(ctx, m.opts.loginTimeout())
	defer cancel()

	callbackServer, err := NewCallbackServer(m.opts.RedirectURI)
	if err != nil {
		return nil, err
	}
	redirectURI, err := callbackServer.Start(flowCtx)
	if err != nil {
		return nil, err
	}
	defer callbackServer.Stop()

	authURL, err := buildAuthorizationURL(metadata, m.opts, redirectURI, state, pkce)
	if err != nil {
		return nil, err
	}

	logging.Info("OIDC", "Session %s: opening browser for login at %s", m.sessionID, m.opts.Authority)
	if err := openBrowser(authURL); err != nil {
		logging.Warn("OIDC", "Could not open browser automatically: %v", err)
		logging.Warn("OIDC", "Open this URL to log in: %s", authURL)
	}

	result, err := callbackServer.Wait(flowCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("login was not completed within %s", m.opts.loginTimeout())
		}
		return nil, fmt.Errorf("login callback failed: %w", err)
	}

	if result.State != state {
		return nil, errors.New("authorization state mismatch, aborting login")
	}
	if result.IsError() {
		if result.ErrorDescription != "" {
			return nil, fmt.Errorf("authorization failed: %s (%s)", result.Error, result.ErrorDescription)
		}
		return nil, fmt.Errorf("authorization failed: %s", result.Error)
	}

	return exchangeCode(ctx, m.httpClient, metadata, m.opts, result.Code, redirectURI, pkce.verifier)
}

// SetRefreshToken seeds the manager with a refresh token obtained out of
// band. The first AccessToken call exchanges it for an access token.
func (m *TokenManager) SetRefreshToken(refreshToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = &oauth2.Token{RefreshToken: refreshToken}
	m.state = StateAuthorized
}

// LoadStoredToken adopts the credential persisted by an earlier login, if
// one exists. Returns false when the store holds nothing usable.
func (m *TokenManager) LoadStoredToken() (bool, error) {
	if m.opts.Store == nil {
		return false, errors.New("no credential store configured")
	}

	cred, err := m.opts.Store.Get(m.storeKey)
	if err != nil {
		return false, fmt.Errorf("failed to read stored credential: %w", err)
	}
	if cred == nil || (cred.RefreshToken == "" && cred.AccessToken == "") {
		return false, nil
	}

	m.mu.Lock()
	m.token = cred.ToOAuth2Token()
	m.state = StateAuthorized
	m.mu.Unlock()

	logging.Debug("OIDC", "Session %s: loaded stored credential for %s", m.sessionID, m.opts.Authority)
	return true, nil
}

// AccessToken returns a fresh access token, refreshing if the cached one
// is within the skew window of its expiry. A token without an expiry never
// goes stale.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if isFresh(token) {
		return token.AccessToken, nil
	}
	return m.refresh(ctx)
}

// ForceRefresh discards the cached access token and fetches a new one.
// Used after the server rejects a token the client still considered valid.
// Concurrent forced refreshes share one token endpoint request.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.token != nil {
		// Published tokens are immutable: AccessToken readers inspect the
		// pointer outside the lock, so staleness is forced by swapping in
		// a copy.
		stale := *m.token
		stale.Expiry = time.Now().Add(-time.Second)
		m.token = &stale
	}
	m.mu.Unlock()

	return m.refresh(ctx)
}

// IDTokenClaims returns the claims of the held ID token, if any.
func (m *TokenManager) IDTokenClaims(ctx context.Context) (map[string]interface{}, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token == nil {
		return nil, errors.New("no token held")
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, errors.New("no ID token held")
	}
	return ParseIDTokenClaims(ctx, idToken)
}

func isFresh(token *oauth2.Token) bool {
	if token == nil || token.AccessToken == "" {
		return false
	}
	if token.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(refreshSkew).Before(token.Expiry)
}

// refresh runs the refresh grant, collapsing concurrent callers into one
// request whose result every caller receives.
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	result, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *TokenManager) doRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()

	// Another caller, or the store watcher, may have renewed the token
	// while this one waited on the flight group.
	if isFresh(m.token) {
		accessToken := m.token.AccessToken
		m.mu.Unlock()
		return accessToken, nil
	}

	if m.token == nil {
		m.mu.Unlock()
		return "", &ReauthenticationRequiredError{
			Authority: m.opts.Authority,
			Reason:    "no credential held, log in first",
		}
	}
	if m.token.RefreshToken == "" {
		m.state = StateExpired
		m.mu.Unlock()
		return "", &ReauthenticationRequiredError{
			Authority: m.opts.Authority,
			Reason:    "access token expired and no refresh token is available",
		}
	}

	previous := m.state
	m.state = StateRefreshing
	refreshToken := m.token.RefreshToken
	m.mu.Unlock()

	metadata, err := m.ensureMetadata(ctx)
	if err != nil {
		m.setState(previous)
		return "", err
	}

	logging.Debug("OIDC", "Session %s: refreshing access token for %s", m.sessionID, m.opts.Authority)
	newToken, err := refreshGrant(ctx, m.httpClient, metadata.TokenEndpoint, m.opts, refreshToken)
	if err != nil {
		var rejected *grantRejectedError
		if errors.As(err, &rejected) {
			m.mu.Lock()
			m.state = StateExpired
			m.token = nil
			m.mu.Unlock()
			logging.Warn("OIDC", "Session %s: refresh token rejected by %s", m.sessionID, m.opts.Authority)
			return "", &ReauthenticationRequiredError{
				Authority: m.opts.Authority,
				Reason:    rejected.Error(),
			}
		}
		m.setState(previous)
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	m.adoptToken(newToken)
	return newToken.AccessToken, nil
}

// adoptToken installs a new token, marks the manager authorized, and
// persists the credential when a store is configured.
func (m *TokenManager) adoptToken(token *oauth2.Token) {
	m.mu.Lock()
	m.token = token
	m.state = StateAuthorized
	m.mu.Unlock()

	if m.opts.Store == nil {
		return
	}
	cred := secretstore.FromOAuth2Token(m.opts.Authority, m.opts.ClientID, token)
	if err := m.opts.Store.Set(m.storeKey, cred); err != nil {
		logging.Warn("OIDC", "Failed to persist credential for %s: %v", m.opts.Authority, err)
	}
}

// reloadFromStore picks up a credential another process wrote. Runs on the
// store watcher's goroutine.
func (m *TokenManager) reloadFromStore() {
	cred, err := m.opts.Store.Get(m.storeKey)
	if err != nil || cred == nil {
		return
	}

	m.mu.Lock()
	m.token = cred.ToOAuth2Token()
	if m.state == StateNoToken || m.state == StateExpired {
		m.state = StateAuthorized
	}
	m.mu.Unlock()

	logging.Debug("OIDC", "Session %s: reloaded externally updated credential", m.sessionID)
}

func (m *TokenManager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// ensureMetadata discovers the provider configuration once and caches it.
func (m *TokenManager) ensureMetadata(ctx context.Context) (*Metadata, error) {
	m.mu.RLock()
	metadata := m.metadata
	m.mu.RUnlock()
	if metadata != nil {
		return metadata, nil
	}

	metadata, err := Discover(ctx, m.httpClient, m.opts.Authority)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.metadata = metadata
	m.mu.Unlock()
	return metadata, nil
}
