// Package secretstore persists OIDC credentials between runs.
//
// Credentials are keyed by the issuing authority and client ID, so several
// tools authenticating against the same provider share one stored refresh
// token. File contents never reach the log output.
package secretstore

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Credential is a stored token set for one authority and client.
type Credential struct {
	// AccessToken is the current access token. May be stale; callers
	// decide freshness via Expiry.
	AccessToken string `json:"access_token"`

	// RefreshToken obtains new access tokens without re-authenticating.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// IDToken is the OIDC ID token from the original authorization.
	IDToken string `json:"id_token,omitempty"`

	// Expiry is the absolute expiry of the access token. Zero means the
	// provider sent no expires_in.
	Expiry time.Time `json:"expiry,omitempty"`

	// Authority is the issuer URL the credential belongs to.
	Authority string `json:"authority"`

	// ClientID is the OAuth client the credential was issued to.
	ClientID string `json:"client_id"`

	// CreatedAt is when the credential was stored.
	CreatedAt time.Time `json:"created_at"`
}

// ToOAuth2Token converts the credential to an oauth2.Token, carrying the ID
// token in the extra data under "id_token".
func (c *Credential) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
	if c.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": c.IDToken,
		})
	}
	return token
}

// FromOAuth2Token builds a credential from an oauth2.Token.
func FromOAuth2Token(authority, clientID string, token *oauth2.Token) *Credential {
	cred := &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		Authority:    authority,
		ClientID:     clientID,
		CreatedAt:    time.Now(),
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		cred.IDToken = idToken
	}
	return cred
}

// Key derives the storage key for an authority and client ID. The SHA256
// hash yields a filesystem-safe identifier that leaks neither value.
func Key(authority, clientID string) string {
	hash := sha256.Sum256([]byte(authority + "\x00" + clientID))
	return hex.EncodeToString(hash[:16])
}

// Store is the persistence interface the token manager writes through.
type Store interface {
	// Get returns the credential stored under key, or nil if none exists.
	Get(key string) (*Credential, error)

	// Set stores a credential under key, replacing any existing one.
	Set(key string, cred *Credential) error

	// Delete removes the credential stored under key. Deleting a missing
	// key is not an error.
	Delete(key string) error

	// List returns all stored credentials.
	List() ([]*Credential, error)
}

// MemoryStore keeps credentials in memory only. Useful for tests and for
// callers that must not touch the filesystem.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

func (s *MemoryStore) Get(key string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[key]
	if !ok {
		return nil, nil
	}
	clone := *cred
	return &clone, nil
}

func (s *MemoryStore) Set(key string, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cred
	s.creds[key] = &clone
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, key)
	return nil
}

func (s *MemoryStore) List() ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.creds))
	for key := range s.creds {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	creds := make([]*Credential, 0, len(keys))
	for _, key := range keys {
		clone := *s.creds[key]
		creds = append(creds, &clone)
	}
	return creds, nil
}
