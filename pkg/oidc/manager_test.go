package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"apisession/pkg/secretstore"
)

// testProvider is a fake OIDC provider serving discovery and token
// endpoints. Each refresh issues token-1, token-2, ... so tests can tell
// refreshes apart.
type testProvider struct {
	ts           *httptest.Server
	refreshCount atomic.Int32
	refreshDelay time.Duration
	rejectWith   string
	expiresIn    int
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()

	p := &testProvider{expiresIn: 3600}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 p.ts.URL,
			"authorization_endpoint": p.ts.URL + "/authorize",
			"token_endpoint":         p.ts.URL + "/token",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.NotEmpty(t, r.Form.Get("refresh_token"))

		if p.refreshDelay > 0 {
			time.Sleep(p.refreshDelay)
		}

		if p.rejectWith != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": p.rejectWith})
			return
		}

		n := p.refreshCount.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  fmt.Sprintf("token-%d", n),
			"token_type":    "Bearer",
			"expires_in":    p.expiresIn,
			"refresh_token": fmt.Sprintf("refresh-%d", n),
		})
	})

	p.ts = httptest.NewServer(mux)
	t.Cleanup(p.ts.Close)
	return p
}

func (p *testProvider) options() Options {
	return Options{
		Authority: p.ts.URL,
		ClientID:  "test-client",
	}
}

func newTestManager(t *testing.T, opts Options) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func seedToken(m *TokenManager, accessToken string, expiry time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: "seed-refresh",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
	m.state = StateAuthorized
}

func TestAccessTokenReturnsCachedWhileFresh(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())
	seedToken(m, "cached", time.Now().Add(time.Hour))

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", token)
	assert.Equal(t, int32(0), provider.refreshCount.Load())
	assert.Equal(t, StateAuthorized, m.State())
}

func TestAccessTokenWithoutExpiryNeverRefreshes(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())
	seedToken(m, "eternal", time.Time{})

	for i := 0; i < 3; i++ {
		token, err := m.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "eternal", token)
	}
	assert.Equal(t, int32(0), provider.refreshCount.Load())
}

func TestAccessTokenRefreshesInsideSkewWindow(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())

	// Expires in 10s: still technically valid, but inside the 30s skew
	// window, so a refresh must run.
	seedToken(m, "stale", time.Now().Add(10*time.Second))

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, int32(1), provider.refreshCount.Load())
	assert.Equal(t, StateAuthorized, m.State())

	// The renewed token is fresh, so no further refresh happens.
	token, err = m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, int32(1), provider.refreshCount.Load())
}

func TestConcurrentRefreshCollapsesToOneRequest(t *testing.T) {
	provider := newTestProvider(t)
	provider.refreshDelay = 50 * time.Millisecond
	m := newTestManager(t, provider.options())
	seedToken(m, "stale", time.Now().Add(-time.Minute))

	const callers = 10
	results := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.AccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.refreshCount.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "token-1", results[i])
	}
}

func TestRefreshRejectionRequiresReauthentication(t *testing.T) {
	provider := newTestProvider(t)
	provider.rejectWith = "invalid_grant"
	m := newTestManager(t, provider.options())
	seedToken(m, "stale", time.Now().Add(-time.Minute))

	_, err := m.AccessToken(context.Background())
	require.Error(t, err)

	var reauth *ReauthenticationRequiredError
	require.ErrorAs(t, err, &reauth)
	assert.Equal(t, provider.ts.URL, reauth.Authority)
	assert.Contains(t, reauth.Error(), "invalid_grant")
	assert.Equal(t, StateExpired, m.State())

	// The credential is gone; later calls keep failing the same way.
	_, err = m.AccessToken(context.Background())
	var again *ReauthenticationRequiredError
	require.ErrorAs(t, err, &again)
}

func TestRefreshTransientFailureKeepsCredential(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())
	seedToken(m, "stale", time.Now().Add(-time.Minute))

	// Stop the provider so the refresh fails at the transport level.
	provider.ts.Close()

	_, err := m.AccessToken(context.Background())
	require.Error(t, err)

	var reauth *ReauthenticationRequiredError
	assert.False(t, errors.As(err, &reauth), "transport failures must not demand re-authentication")
	assert.Equal(t, StateAuthorized, m.State())
}

func TestSetRefreshTokenExchangesOnFirstUse(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())

	m.SetRefreshToken("external-refresh")
	assert.Equal(t, StateAuthorized, m.State())

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, int32(1), provider.refreshCount.Load())
}

func TestAccessTokenWithoutCredential(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())

	_, err := m.AccessToken(context.Background())

	var reauth *ReauthenticationRequiredError
	require.ErrorAs(t, err, &reauth)
	assert.Equal(t, StateNoToken, m.State())
}

func TestExpiredTokenWithoutRefreshToken(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())
	m.mu.Lock()
	m.token = &oauth2.Token{AccessToken: "stale", Expiry: time.Now().Add(-time.Minute)}
	m.state = StateAuthorized
	m.mu.Unlock()

	_, err := m.AccessToken(context.Background())

	var reauth *ReauthenticationRequiredError
	require.ErrorAs(t, err, &reauth)
	assert.Equal(t, StateExpired, m.State())
}

func TestForceRefreshDiscardsFreshToken(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())
	seedToken(m, "still-valid", time.Now().Add(time.Hour))

	token, err := m.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, int32(1), provider.refreshCount.Load())
}

func TestConcurrentAccessDuringForceRefresh(t *testing.T) {
	provider := newTestProvider(t)
	m := newTestManager(t, provider.options())
	seedToken(m, "fresh", time.Now().Add(time.Hour))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				token, err := m.AccessToken(context.Background())
				assert.NoError(t, err)
				assert.NotEmpty(t, token)
			}
		}()
	}

	for i := 0; i < 10; i++ {
		token, err := m.ForceRefresh(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, token)
	}

	close(done)
	wg.Wait()
	assert.Equal(t, StateAuthorized, m.State())
}

func TestRefreshPersistsToStore(t *testing.T) {
	provider := newTestProvider(t)
	store := secretstore.NewMemoryStore()

	opts := provider.options()
	opts.Store = store
	m := newTestManager(t, opts)
	seedToken(m, "stale", time.Now().Add(-time.Minute))

	_, err := m.AccessToken(context.Background())
	require.NoError(t, err)

	cred, err := store.Get(secretstore.Key(opts.Authority, opts.ClientID))
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "token-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
}

func TestLoadStoredToken(t *testing.T) {
	provider := newTestProvider(t)
	store := secretstore.NewMemoryStore()

	opts := provider.options()
	opts.Store = store
	key := secretstore.Key(opts.Authority, opts.ClientID)

	m := newTestManager(t, opts)
	found, err := m.LoadStoredToken()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(key, &secretstore.Credential{
		AccessToken: "stored",
		Expiry:      time.Now().Add(time.Hour),
		Authority:   opts.Authority,
		ClientID:    opts.ClientID,
	}))

	found, err = m.LoadStoredToken()
	require.NoError(t, err)
	assert.True(t, found)

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", token)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "no-token", StateNoToken.String())
	assert.Equal(t, "authorizing", StateAuthorizing.String())
	assert.Equal(t, "authorized", StateAuthorized.String())
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "expired", StateExpired.String())
}
