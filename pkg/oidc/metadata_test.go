package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/openid-configuration", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 "https://idp.example.com",
			"authorization_endpoint": "https://idp.example.com/authorize",
			"token_endpoint":         "https://idp.example.com/token",
		})
	}))
	defer ts.Close()

	metadata, err := Discover(context.Background(), ts.Client(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com/authorize", metadata.AuthorizationEndpoint)
	assert.Equal(t, "https://idp.example.com/token", metadata.TokenEndpoint)
}

func TestDiscoverTrailingSlash(t *testing.T) {
	var requestedPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{
			"authorization_endpoint": "https://idp.example.com/authorize",
			"token_endpoint":         "https://idp.example.com/token",
		})
	}))
	defer ts.Close()

	_, err := Discover(context.Background(), ts.Client(), ts.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "/.well-known/openid-configuration", requestedPath)
}

func TestDiscoverRejectsIncompleteConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]string
		wantErr string
	}{
		{
			name:    "missing token endpoint",
			config:  map[string]string{"authorization_endpoint": "https://idp.example.com/authorize"},
			wantErr: "token_endpoint",
		},
		{
			name:    "missing authorization endpoint",
			config:  map[string]string{"token_endpoint": "https://idp.example.com/token"},
			wantErr: "authorization_endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.config)
			}))
			defer ts.Close()

			_, err := Discover(context.Background(), ts.Client(), ts.URL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDiscoverServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := Discover(context.Background(), ts.Client(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
