package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDTokenClaims(t *testing.T) {
	tok, err := jwt.NewBuilder().
		Issuer("https://idp.example.com").
		Subject("user-123").
		Expiration(time.Now().Add(time.Hour)).
		Claim("email", "alice@example.com").
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	claims, err := ParseIDTokenClaims(context.Background(), string(signed))
	require.NoError(t, err)

	assert.Equal(t, "https://idp.example.com", claims["iss"])
	assert.Equal(t, "user-123", claims["sub"])
	assert.Equal(t, "alice@example.com", claims["email"])
}

func TestParseIDTokenClaimsRejectsGarbage(t *testing.T) {
	_, err := ParseIDTokenClaims(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}
