package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apisession/pkg/challenge"
)

func bearerChallenge(t *testing.T, header string) challenge.Challenge {
	t.Helper()
	c, ok := challenge.Parse(header).Get("Bearer")
	require.True(t, ok)
	return c
}

func TestMergeChallengeFillsEmptyFields(t *testing.T) {
	c := bearerChallenge(t, `Bearer authority="https://idp.example.com", clientid="from-server", `+
		`redirecturi="http://localhost:32284", scope="openid offline_access", apiAudience="https://api.example.com"`)

	opts := Options{}.MergeChallenge(c)

	assert.Equal(t, "https://idp.example.com", opts.Authority)
	assert.Equal(t, "from-server", opts.ClientID)
	assert.Equal(t, "http://localhost:32284", opts.RedirectURI)
	assert.Equal(t, []string{"openid", "offline_access"}, opts.Scopes)
	assert.Equal(t, "https://api.example.com", opts.Audience)
}

func TestMergeChallengeKeepsExplicitSettings(t *testing.T) {
	c := bearerChallenge(t, `Bearer authority="https://idp.example.com", clientid="from-server"`)

	opts := Options{
		ClientID: "explicit-client",
		Scopes:   []string{"custom"},
	}.MergeChallenge(c)

	assert.Equal(t, "https://idp.example.com", opts.Authority)
	assert.Equal(t, "explicit-client", opts.ClientID)
	assert.Equal(t, []string{"custom"}, opts.Scopes)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Options{Authority: "https://idp.example.com", ClientID: "c"}.Validate())

	err := Options{ClientID: "c"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authority")

	err = Options{Authority: "https://idp.example.com"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client ID")
}
