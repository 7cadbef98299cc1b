package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"apisession/pkg/challenge"
	"apisession/pkg/logging"
	"apisession/pkg/oidc"
	"apisession/pkg/winauth"
)

// oidcEntry selects how an OIDC-configured builder obtains its first
// credential.
type oidcEntry int

const (
	oidcEntryInteractive oidcEntry = iota
	oidcEntryRefreshToken
	oidcEntryStored
)

// Builder configures and establishes a Session.
//
// Exactly one authentication method is chosen via the With* methods; a
// second choice fails. Connect probes the server, verifies the method
// against what the server advertises, and returns a ready session. The
// first successful Connect is cached: later calls return the same session
// without touching the network, and concurrent calls share one probe.
type Builder struct {
	mu     sync.Mutex
	apiURL string
	config *SessionConfiguration

	configured bool
	modeName   string

	mode          Mode
	username      string
	password      string
	authenticator winauth.Authenticator
	oidcOpts      oidc.Options
	oidcEntry     oidcEntry
	refreshToken  string

	session      *Session
	connectGroup singleflight.Group
}

// NewBuilder creates a builder for the API at apiURL. cfg may be nil for
// defaults.
func NewBuilder(apiURL string, cfg *SessionConfiguration) *Builder {
	return &Builder{
		apiURL: apiURL,
		config: cfg.Normalize(),
	}
}

// WithAnonymous configures the session to send no credentials.
func (b *Builder) WithAnonymous() error {
	return b.setMode("anonymous", func() {
		b.mode = ModeAnonymous
	})
}

// WithCredentials configures a username and password. Depending on what
// the server advertises they are used for NTLM (including NTLM under the
// Negotiate scheme) or Basic authentication, preferring NTLM.
func (b *Builder) WithCredentials(username, password string) error {
	if username == "" {
		return newConfigurationError("username must not be empty")
	}
	return b.setMode("credentials", func() {
		b.username = username
		b.password = password
	})
}

// WithAutologon configures Windows Integrated Authentication using the
// given authenticator, typically one backed by the platform's logged-in
// credentials.
func (b *Builder) WithAutologon(authenticator winauth.Authenticator) error {
	if authenticator == nil {
		return newConfigurationError("autologon requires an authenticator")
	}
	return b.setMode("autologon", func() {
		b.mode = ModeHandshake
		b.authenticator = authenticator
	})
}

// WithOIDC configures OIDC with an interactive browser login. Provider
// settings left empty in opts are filled from the server's Bearer
// challenge at connect time.
func (b *Builder) WithOIDC(opts oidc.Options) error {
	return b.setMode("oidc", func() {
		b.mode = ModeOIDC
		b.oidcOpts = opts
		b.oidcEntry = oidcEntryInteractive
	})
}

// WithOIDCRefreshToken configures OIDC seeded with a refresh token
// obtained out of band. No browser interaction happens.
func (b *Builder) WithOIDCRefreshToken(opts oidc.Options, refreshToken string) error {
	if refreshToken == "" {
		return newConfigurationError("refresh token must not be empty")
	}
	return b.setMode("oidc", func() {
		b.mode = ModeOIDC
		b.oidcOpts = opts
		b.oidcEntry = oidcEntryRefreshToken
		b.refreshToken = refreshToken
	})
}

// WithStoredOIDCToken configures OIDC using a credential persisted by an
// earlier login. Connect fails if the store holds nothing for the
// provider.
func (b *Builder) WithStoredOIDCToken(opts oidc.Options) error {
	return b.setMode("oidc", func() {
		b.mode = ModeOIDC
		b.oidcOpts = opts
		b.oidcEntry = oidcEntryStored
	})
}

func (b *Builder) setMode(name string, apply func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.configured {
		return newConfigurationError("authentication method already configured as %s", b.modeName)
	}
	b.configured = true
	b.modeName = name
	apply()
	return nil
}

// Connect establishes the session. It probes the API URL, matches the
// configured method against the server's challenges, completes any
// authentication flow, and verifies the result with an authenticated
// request.
//
// The first success is cached; concurrent callers share one attempt.
// Failures are not cached, so Connect can be retried.
func (b *Builder) Connect(ctx context.Context) (*Session, error) {
	b.mu.Lock()
	if b.session != nil {
		session := b.session
		b.mu.Unlock()
		return session, nil
	}
	if !b.configured {
		b.mu.Unlock()
		return nil, newConfigurationError("no authentication method configured")
	}
	b.mu.Unlock()

	result, err, _ := b.connectGroup.Do("connect", func() (interface{}, error) {
		b.mu.Lock()
		if b.session != nil {
			session := b.session
			b.mu.Unlock()
			return session, nil
		}
		b.mu.Unlock()

		session, err := b.buildSession(ctx)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.session = session
		b.mu.Unlock()
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Session), nil
}

func (b *Builder) buildSession(ctx context.Context) (*Session, error) {
	client, err := b.config.HTTPClient()
	if err != nil {
		return nil, newConfigurationError("invalid session configuration: %v", err)
	}

	logging.Debug("Session", "Probing %s", b.apiURL)
	probe, err := http.NewRequestWithContext(ctx, http.MethodGet, b.apiURL, nil)
	if err != nil {
		return nil, newConfigurationError("invalid API URL %q: %v", b.apiURL, err)
	}

	resp, err := client.Do(probe)
	if err != nil {
		return nil, wrapTransportError(b.apiURL, err)
	}
	challenges := challenge.FromResponse(resp)
	status := resp.StatusCode
	drain(resp)

	switch {
	case status >= 200 && status < 300:
		return b.openServerSession(client), nil

	case status == http.StatusUnauthorized:
		if len(challenges) == 0 {
			return nil, &AuthenticationMismatchError{Configured: b.modeName}
		}
		strat, err := b.selectStrategy(ctx, client, challenges)
		if err != nil {
			return nil, err
		}
		session := &Session{apiURL: b.apiURL, client: client, strat: strat}
		if err := b.verify(ctx, session); err != nil {
			session.Close()
			return nil, err
		}
		return session, nil

	default:
		return nil, &ConnectionError{
			URL: b.apiURL,
			Err: fmt.Errorf("unexpected status %d from authentication probe", status),
		}
	}
}

// openServerSession handles a server that answered the unauthenticated
// probe with success. Configured credentials are not sent: the session
// proceeds anonymously, with a warning when that contradicts the
// configuration.
func (b *Builder) openServerSession(client *http.Client) *Session {
	session := &Session{
		apiURL: b.apiURL,
		client: client,
		strat:  &strategy{mode: ModeAnonymous},
	}
	if b.modeName != "anonymous" {
		session.warning = fmt.Sprintf(
			"the server at %s accepts unauthenticated requests, configured %s credentials will not be sent",
			b.apiURL, b.modeName)
		logging.Warn("Session", "%s", session.warning)
	}
	return session
}

// selectStrategy matches the configured method against the advertised
// challenges, honoring the precedence OIDC, Negotiate, NTLM, Basic within
// the schemes the configured method can serve.
func (b *Builder) selectStrategy(ctx context.Context, client *http.Client, challenges challenge.Challenges) (*strategy, error) {
	mismatch := &AuthenticationMismatchError{
		Configured: b.modeName,
		Advertised: challenges.Schemes(),
	}

	switch b.modeName {
	case "anonymous":
		// The server demands authentication and none is configured.
		return nil, mismatch

	case "credentials":
		switch {
		case challenges.Has("Negotiate"):
			return &strategy{
				mode:          ModeHandshake,
				scheme:        "Negotiate",
				authenticator: winauth.NewNTLM(b.username, b.password),
			}, nil
		case challenges.Has("NTLM"):
			return &strategy{
				mode:          ModeHandshake,
				scheme:        "NTLM",
				authenticator: winauth.NewNTLM(b.username, b.password),
			}, nil
		case challenges.Has("Basic"):
			return &strategy{mode: ModeBasic, username: b.username, password: b.password}, nil
		default:
			return nil, mismatch
		}

	case "autologon":
		scheme := ""
		switch {
		case challenges.Has("Negotiate"):
			scheme = "Negotiate"
		case challenges.Has("NTLM"):
			scheme = "NTLM"
		default:
			return nil, mismatch
		}
		return &strategy{mode: ModeHandshake, scheme: scheme, authenticator: b.authenticator}, nil

	case "oidc":
		bearer, ok := challenges.Get("Bearer")
		if !ok {
			return nil, mismatch
		}
		tokens, err := b.buildTokenManager(ctx, bearer)
		if err != nil {
			return nil, err
		}
		return &strategy{mode: ModeOIDC, tokens: tokens}, nil

	default:
		return nil, newConfigurationError("unknown authentication method %q", b.modeName)
	}
}

// buildTokenManager assembles the OIDC token manager from the configured
// options and the Bearer challenge, then obtains the initial credential
// per the chosen entry mode.
func (b *Builder) buildTokenManager(ctx context.Context, bearer challenge.Challenge) (*oidc.TokenManager, error) {
	opts := b.oidcOpts.MergeChallenge(bearer)
	if err := opts.Validate(); err != nil {
		return nil, newConfigurationError("%v", err)
	}

	tokens, err := oidc.NewTokenManager(opts)
	if err != nil {
		return nil, err
	}

	switch b.oidcEntry {
	case oidcEntryInteractive:
		if err := tokens.Authorize(ctx); err != nil {
			tokens.Close()
			return nil, err
		}
	case oidcEntryRefreshToken:
		tokens.SetRefreshToken(b.refreshToken)
	case oidcEntryStored:
		found, err := tokens.LoadStoredToken()
		if err != nil {
			tokens.Close()
			return nil, err
		}
		if !found {
			tokens.Close()
			return nil, &oidc.ReauthenticationRequiredError{
				Authority: opts.Authority,
				Reason:    "no stored credential found, log in first",
			}
		}
	}

	return tokens, nil
}

// verify sends one authenticated request to confirm the negotiated
// strategy actually works. Any status except 401 counts as authenticated;
// authorization is the caller's concern.
func (b *Builder) verify(ctx context.Context, session *Session) error {
	req, err := session.NewRequest(ctx, http.MethodGet, "", nil)
	if err != nil {
		return err
	}

	resp, err := session.Do(req)
	if err != nil {
		return err
	}
	status := resp.StatusCode
	drain(resp)

	if status == http.StatusUnauthorized {
		return &AuthenticationFailedError{Method: b.modeName, Status: status}
	}

	logging.Info("Session", "Connected to %s using %s authentication", b.apiURL, b.modeName)
	return nil
}
