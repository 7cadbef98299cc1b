package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"apisession/pkg/oidc"
	"apisession/pkg/winauth"
)

// Mode identifies the authentication strategy a session operates with.
// The set is closed: request preparation and response handling switch
// exhaustively over it.
type Mode int

const (
	// ModeAnonymous sends requests without credentials.
	ModeAnonymous Mode = iota

	// ModeBasic sends the username and password on every request.
	ModeBasic

	// ModeHandshake performs a challenge-response handshake (NTLM, or
	// NTLM carried under the Negotiate scheme).
	ModeHandshake

	// ModeOIDC sends a bearer token kept fresh by a token manager.
	ModeOIDC
)

func (m Mode) String() string {
	switch m {
	case ModeAnonymous:
		return "anonymous"
	case ModeBasic:
		return "basic"
	case ModeHandshake:
		return "handshake"
	case ModeOIDC:
		return "oidc"
	default:
		return "unknown"
	}
}

// strategy carries the per-mode material a session needs to authenticate
// its requests. Only the fields of the active mode are set.
type strategy struct {
	mode Mode

	// Basic.
	username string
	password string

	// Handshake.
	scheme        string
	authenticator winauth.Authenticator

	// OIDC.
	tokens *oidc.TokenManager
}

// SchemeName returns the wire-level scheme this strategy authenticates
// with, or "" for anonymous.
func (s *strategy) SchemeName() string {
	switch s.mode {
	case ModeBasic:
		return "Basic"
	case ModeHandshake:
		return s.scheme
	case ModeOIDC:
		return "Bearer"
	default:
		return ""
	}
}

// prepare attaches the strategy's credentials to an outgoing request.
// Handshake modes attach nothing: their exchange only starts once the
// server challenges.
func (s *strategy) prepare(ctx context.Context, req *http.Request) error {
	switch s.mode {
	case ModeAnonymous, ModeHandshake:
		return nil
	case ModeBasic:
		req.SetBasicAuth(s.username, s.password)
		return nil
	case ModeOIDC:
		token, err := s.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	default:
		return fmt.Errorf("unknown authentication mode %d", s.mode)
	}
}

// initialHandshakeHeader returns the Authorization header value opening
// the handshake.
func (s *strategy) initialHandshakeHeader() (string, error) {
	token, err := s.authenticator.InitialToken()
	if err != nil {
		return "", fmt.Errorf("failed to create %s negotiation token: %w", s.scheme, err)
	}
	return s.scheme + " " + base64.StdEncoding.EncodeToString(token), nil
}

// continueHandshakeHeader consumes the server's token68 challenge and
// returns the next Authorization header value. done reports that the
// client side of the exchange is complete.
func (s *strategy) continueHandshakeHeader(token68 string) (header string, done bool, err error) {
	serverToken, err := base64.StdEncoding.DecodeString(token68)
	if err != nil {
		return "", false, fmt.Errorf("server sent a malformed %s challenge: %w", s.scheme, err)
	}

	response, done, err := s.authenticator.ProcessChallenge(serverToken)
	if err != nil {
		return "", false, fmt.Errorf("failed to answer %s challenge: %w", s.scheme, err)
	}
	return s.scheme + " " + base64.StdEncoding.EncodeToString(response), done, nil
}
