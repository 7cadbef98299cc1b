package oidc

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"apisession/pkg/challenge"
	"apisession/pkg/secretstore"
)

// DefaultLoginTimeout bounds how long an interactive login waits for the
// user to complete the browser flow.
const DefaultLoginTimeout = 60 * time.Second

// Options configures a TokenManager.
//
// Servers typically deliver the provider configuration in their Bearer
// challenge; MergeChallenge fills any field left empty here from those
// challenge parameters, so explicit settings always win.
type Options struct {
	// Authority is the OIDC issuer URL.
	Authority string

	// ClientID is the OAuth client to authenticate as.
	ClientID string

	// RedirectURI receives the authorization callback during interactive
	// login. Must be a loopback URL. Empty selects a random local port.
	RedirectURI string

	// Scopes to request during authorization.
	Scopes []string

	// Audience is the API audience the access token is intended for.
	// Propagated to the token endpoint when set.
	Audience string

	// LoginTimeout bounds the interactive browser login. Zero means
	// DefaultLoginTimeout.
	LoginTimeout time.Duration

	// HTTPClient performs discovery and token endpoint requests. Nil
	// selects a default client.
	HTTPClient *http.Client

	// Store persists credentials between runs. Nil disables persistence.
	Store secretstore.Store

	// WatchStore reloads the credential when another process updates the
	// store. Only effective with a file-backed store.
	WatchStore bool
}

// MergeChallenge fills empty fields from the Bearer challenge parameters
// the server advertised.
func (o Options) MergeChallenge(c challenge.Challenge) Options {
	if o.Authority == "" {
		o.Authority, _ = c.Params.Get("authority")
	}
	if o.ClientID == "" {
		o.ClientID, _ = c.Params.Get("clientid")
	}
	if o.RedirectURI == "" {
		o.RedirectURI, _ = c.Params.Get("redirecturi")
	}
	if len(o.Scopes) == 0 {
		if scope, ok := c.Params.Get("scope"); ok {
			o.Scopes = strings.Fields(scope)
		}
	}
	if o.Audience == "" {
		o.Audience, _ = c.Params.Get("apiaudience")
	}
	return o
}

// Validate checks that the options are complete enough to authenticate.
func (o Options) Validate() error {
	if o.Authority == "" {
		return fmt.Errorf("no OIDC authority configured: the server's Bearer challenge carried no authority parameter and none was provided")
	}
	if o.ClientID == "" {
		return fmt.Errorf("no OIDC client ID configured: the server's Bearer challenge carried no clientid parameter and none was provided")
	}
	return nil
}

func (o Options) loginTimeout() time.Duration {
	if o.LoginTimeout > 0 {
		return o.LoginTimeout
	}
	return DefaultLoginTimeout
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
