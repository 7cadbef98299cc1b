package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"apisession/pkg/logging"
	"apisession/pkg/oidc"
	"apisession/pkg/session"
)

const (
	userConfigDir  = ".config/apisession"
	configFileName = "config.yaml"
)

// Config is the on-disk CLI configuration.
type Config struct {
	// Endpoint is the API server URL commands operate on.
	Endpoint string `yaml:"endpoint,omitempty"`

	// OIDC overrides provider settings the server's challenge would
	// otherwise supply.
	OIDC OIDCConfig `yaml:"oidc,omitempty"`

	// TLS configures transport security for the API connection.
	TLS TLSConfig `yaml:"tls,omitempty"`

	// Proxy routes API requests through the given proxy URL.
	Proxy string `yaml:"proxy,omitempty"`

	// Headers are added to every API request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// RequestTimeoutSeconds bounds each API request.
	RequestTimeoutSeconds int `yaml:"requestTimeoutSeconds,omitempty"`

	// MaxRedirects bounds redirect following.
	MaxRedirects int `yaml:"maxRedirects,omitempty"`

	// StoreDir overrides the credential storage directory.
	StoreDir string `yaml:"storeDir,omitempty"`
}

// OIDCConfig carries optional OIDC provider overrides.
type OIDCConfig struct {
	Authority   string   `yaml:"authority,omitempty"`
	ClientID    string   `yaml:"clientID,omitempty"`
	RedirectURI string   `yaml:"redirectURI,omitempty"`
	Scopes      []string `yaml:"scopes,omitempty"`
	Audience    string   `yaml:"audience,omitempty"`
}

// TLSConfig carries transport security settings.
type TLSConfig struct {
	ClientCert string `yaml:"clientCert,omitempty"`
	ClientKey  string `yaml:"clientKey,omitempty"`
	CAStore    string `yaml:"caStore,omitempty"`
	Insecure   bool   `yaml:"insecure,omitempty"`
}

func defaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// loadConfig reads the configuration file, honoring the --config flag.
// A missing file yields the zero config.
func loadConfig() (Config, error) {
	path := flagConfigPath
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return Config{}, err
		}
	}

	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config file at %s, using defaults", path)
			return config, nil
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	logging.Info("Config", "Loaded configuration from %s", path)
	return config, nil
}

// endpoint resolves the API URL from the --endpoint flag or the config.
func (c Config) endpoint() (string, error) {
	if flagEndpoint != "" {
		return flagEndpoint, nil
	}
	if c.Endpoint != "" {
		return c.Endpoint, nil
	}
	return "", errors.New("no endpoint configured: pass --endpoint or set endpoint in the config file")
}

// sessionConfiguration converts the config into transport settings.
func (c Config) sessionConfiguration() *session.SessionConfiguration {
	cfg := &session.SessionConfiguration{
		ClientCertPath:         c.TLS.ClientCert,
		ClientKeyPath:          c.TLS.ClientKey,
		CAStorePath:            c.TLS.CAStore,
		DisableTLSVerification: c.TLS.Insecure,
		ProxyURL:               c.Proxy,
		RequestTimeout:         time.Duration(c.RequestTimeoutSeconds) * time.Second,
		MaxRedirects:           c.MaxRedirects,
	}
	if len(c.Headers) > 0 {
		cfg.Headers = http.Header{}
		for key, value := range c.Headers {
			cfg.Headers.Set(key, value)
		}
	}
	return cfg
}

// oidcOptions converts the config's OIDC overrides into provider options.
func (c Config) oidcOptions() oidc.Options {
	return oidc.Options{
		Authority:   c.OIDC.Authority,
		ClientID:    c.OIDC.ClientID,
		RedirectURI: c.OIDC.RedirectURI,
		Scopes:      c.OIDC.Scopes,
		Audience:    c.OIDC.Audience,
	}
}
