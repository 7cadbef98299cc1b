package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	pkceVerifierBytes = 32
	stateBytes        = 32
)

// pkceChallenge holds the PKCE verifier and its S256 challenge for one
// authorization attempt. The verifier never leaves the process until the
// code exchange.
type pkceChallenge struct {
	verifier  string
	challenge string
}

// generatePKCE produces a fresh PKCE pair: 32 random bytes base64url-encoded
// as the verifier, with its SHA256 hash as the S256 challenge.
func generatePKCE() (*pkceChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	return &pkceChallenge{
		verifier:  verifier,
		challenge: base64.RawURLEncoding.EncodeToString(hash[:]),
	}, nil
}

// generateState produces the random state parameter linking the
// authorization response back to this attempt.
func generateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
