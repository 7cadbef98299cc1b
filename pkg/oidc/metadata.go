package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"apisession/pkg/logging"
)

// Metadata is the subset of the OIDC discovery document the package needs.
type Metadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	UserinfoEndpoint              string   `json:"userinfo_endpoint,omitempty"`
	JwksURI                       string   `json:"jwks_uri,omitempty"`
	EndSessionEndpoint            string   `json:"end_session_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// Discover fetches the authority's well-known OpenID configuration.
// Authorities missing the authorization or token endpoint are rejected:
// nothing useful can be done without them.
func Discover(ctx context.Context, client *http.Client, authority string) (*Metadata, error) {
	wellKnown := strings.TrimSuffix(authority, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OIDC configuration from %s: %w", wellKnown, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OIDC configuration: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OIDC configuration request to %s returned status %d", wellKnown, resp.StatusCode)
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse OIDC configuration: %w", err)
	}

	if metadata.AuthorizationEndpoint == "" {
		return nil, fmt.Errorf("OIDC configuration from %s is missing the authorization_endpoint", authority)
	}
	if metadata.TokenEndpoint == "" {
		return nil, fmt.Errorf("OIDC configuration from %s is missing the token_endpoint", authority)
	}

	logging.Debug("OIDC", "Discovered OIDC configuration for %s", authority)
	return &metadata, nil
}
