package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// tokenResponse is the token endpoint's JSON body for both the code
// exchange and the refresh grant.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope"`
}

// tokenError is the token endpoint's JSON error body per RFC 6749.
type tokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// toToken converts the response to an oauth2.Token. The expiry is anchored
// at the moment of issuance: expires_in counts from now, not from first use.
func (r *tokenResponse) toToken() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
	}
	if r.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	if r.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": r.IDToken,
		})
	}
	return token
}

// buildAuthorizationURL constructs the authorization request URL for the
// code flow with PKCE.
func buildAuthorizationURL(metadata *Metadata, opts Options, redirectURI, state string, pkce *pkceChallenge) (string, error) {
	authURL, err := url.Parse(metadata.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {opts.ClientID},
		"redirect_uri":          {redirectURI},
		"state":                 {state},
		"code_challenge":        {pkce.challenge},
		"code_challenge_method": {"S256"},
	}
	if len(opts.Scopes) > 0 {
		params.Set("scope", strings.Join(opts.Scopes, " "))
	}
	if opts.Audience != "" {
		params.Set("audience", opts.Audience)
	}

	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}

// exchangeCode trades an authorization code for tokens.
func exchangeCode(ctx context.Context, client *http.Client, metadata *Metadata, opts Options, code, redirectURI, verifier string) (*oauth2.Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
		"client_id":     {opts.ClientID},
	}
	if opts.Audience != "" {
		data.Set("audience", opts.Audience)
	}

	resp, err := postTokenRequest(ctx, client, metadata.TokenEndpoint, data)
	if err != nil {
		return nil, err
	}
	return resp.toToken(), nil
}

// refreshGrant trades a refresh token for a new token set. When the
// provider omits a new refresh token the old one stays valid, so the caller
// keeps it.
func refreshGrant(ctx context.Context, client *http.Client, tokenEndpoint string, opts Options, refreshToken string) (*oauth2.Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {opts.ClientID},
	}
	if len(opts.Scopes) > 0 {
		data.Set("scope", strings.Join(opts.Scopes, " "))
	}
	if opts.Audience != "" {
		data.Set("audience", opts.Audience)
	}

	resp, err := postTokenRequest(ctx, client, tokenEndpoint, data)
	if err != nil {
		return nil, err
	}

	token := resp.toToken()
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// grantRejectedError marks a token request the provider actively refused,
// as opposed to a transport failure or server outage.
type grantRejectedError struct {
	status      int
	code        string
	description string
}

func (e *grantRejectedError) Error() string {
	if e.code == "" {
		return fmt.Sprintf("token request rejected with status %d", e.status)
	}
	if e.description != "" {
		return fmt.Sprintf("token request rejected: %s (%s)", e.code, e.description)
	}
	return fmt.Sprintf("token request rejected: %s", e.code)
}

func postTokenRequest(ctx context.Context, client *http.Client, endpoint string, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		var te tokenError
		_ = json.Unmarshal(body, &te)
		return nil, &grantRejectedError{status: resp.StatusCode, code: te.Code, description: te.Description}
	default:
		return nil, fmt.Errorf("token request to %s failed with status %d", endpoint, resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response from %s carried no access token", endpoint)
	}
	return &tokenResp, nil
}
