package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
endpoint: https://api.example.com
oidc:
  authority: https://login.example.com
  clientID: my-client
  scopes:
    - openid
    - profile
tls:
  insecure: true
headers:
  X-Tenant: acme
requestTimeoutSeconds: 10
maxRedirects: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	oldPath := flagConfigPath
	flagConfigPath = path
	defer func() { flagConfigPath = oldPath }()

	config, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", config.Endpoint)
	assert.Equal(t, "https://login.example.com", config.OIDC.Authority)
	assert.Equal(t, "my-client", config.OIDC.ClientID)
	assert.Equal(t, []string{"openid", "profile"}, config.OIDC.Scopes)
	assert.True(t, config.TLS.Insecure)
	assert.Equal(t, "acme", config.Headers["X-Tenant"])
	assert.Equal(t, 10, config.RequestTimeoutSeconds)
	assert.Equal(t, 3, config.MaxRedirects)
}

func TestLoadConfigMissingFileIsDefault(t *testing.T) {
	oldPath := flagConfigPath
	flagConfigPath = filepath.Join(t.TempDir(), "does-not-exist.yaml")
	defer func() { flagConfigPath = oldPath }()

	config, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, Config{}, config)
}

func TestLoadConfigRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint: [broken"), 0600))

	oldPath := flagConfigPath
	flagConfigPath = path
	defer func() { flagConfigPath = oldPath }()

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestEndpointPrecedence(t *testing.T) {
	oldEndpoint := flagEndpoint
	defer func() { flagEndpoint = oldEndpoint }()

	config := Config{Endpoint: "https://from-config"}

	flagEndpoint = "https://from-flag"
	endpoint, err := config.endpoint()
	require.NoError(t, err)
	assert.Equal(t, "https://from-flag", endpoint)

	flagEndpoint = ""
	endpoint, err = config.endpoint()
	require.NoError(t, err)
	assert.Equal(t, "https://from-config", endpoint)

	_, err = Config{}.endpoint()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--endpoint")
}

func TestSessionConfigurationConversion(t *testing.T) {
	config := Config{
		TLS:                   TLSConfig{ClientCert: "/certs/client.pem", ClientKey: "/certs/client.key"},
		Proxy:                 "http://proxy.internal:3128",
		Headers:               map[string]string{"X-Tenant": "acme"},
		RequestTimeoutSeconds: 42,
		MaxRedirects:          5,
	}

	cfg := config.sessionConfiguration()
	assert.Equal(t, "/certs/client.pem", cfg.ClientCertPath)
	assert.Equal(t, "http://proxy.internal:3128", cfg.ProxyURL)
	assert.Equal(t, 42*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MaxRedirects)
	assert.Equal(t, "acme", cfg.Headers.Get("X-Tenant"))
}

func TestOIDCOptionsConversion(t *testing.T) {
	config := Config{
		OIDC: OIDCConfig{
			Authority: "https://login.example.com",
			ClientID:  "my-client",
			Audience:  "https://api.example.com",
		},
	}
	opts := config.oidcOptions()
	assert.Equal(t, "https://login.example.com", opts.Authority)
	assert.Equal(t, "my-client", opts.ClientID)
	assert.Equal(t, "https://api.example.com", opts.Audience)
}
