package oidc

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackServerReceivesCode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewCallbackServer("")
	require.NoError(t, err)

	redirectURI, err := server.Start(ctx)
	require.NoError(t, err)
	defer server.Stop()

	resp, err := http.Get(redirectURI + "?code=auth-code&state=xyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	result, err := server.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "auth-code", result.Code)
	assert.Equal(t, "xyz", result.State)
	assert.False(t, result.IsError())
}

func TestCallbackServerReceivesError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewCallbackServer("")
	require.NoError(t, err)

	redirectURI, err := server.Start(ctx)
	require.NoError(t, err)
	defer server.Stop()

	resp, err := http.Get(redirectURI + "?error=access_denied&error_description=user+cancelled")
	require.NoError(t, err)
	resp.Body.Close()

	result, err := server.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, result.IsError())
	assert.Equal(t, "access_denied", result.Error)
	assert.Equal(t, "user cancelled", result.ErrorDescription)
}

func TestCallbackServerWaitTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	server, err := NewCallbackServer("")
	require.NoError(t, err)

	_, err = server.Start(ctx)
	require.NoError(t, err)
	defer server.Stop()

	_, err = server.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewCallbackServerValidatesRedirectURI(t *testing.T) {
	_, err := NewCallbackServer("https://evil.example.com/callback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loopback")

	server, err := NewCallbackServer("http://localhost:0/login/callback")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redirectURI, err := server.Start(ctx)
	require.NoError(t, err)
	defer server.Stop()
	assert.Contains(t, redirectURI, "/login/callback")
}
