package session

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	// DefaultRequestTimeout bounds each request issued through the session.
	DefaultRequestTimeout = 31 * time.Second

	// DefaultMaxRedirects bounds how many redirects a request will follow.
	DefaultMaxRedirects = 10
)

// SessionConfiguration carries the transport-level settings shared by every
// request a session makes: TLS material, proxying, extra headers, and
// timeout behavior. The zero value is usable; Normalize fills in defaults.
type SessionConfiguration struct {
	// ClientCertPath and ClientKeyPath configure mutual TLS. Both must be
	// set together; ClientKeyPath may be omitted if the PEM file at
	// ClientCertPath contains the key as well.
	ClientCertPath string
	ClientKeyPath  string

	// CAStorePath points at a PEM bundle that replaces the system roots
	// for server certificate verification.
	CAStorePath string

	// DisableTLSVerification turns off server certificate checks.
	DisableTLSVerification bool

	// ProxyURL routes requests through the given proxy. When empty the
	// environment proxy settings apply.
	ProxyURL string

	// Headers are added to every request issued through the session.
	Headers http.Header

	// RequestTimeout bounds each individual request, connection setup and
	// body included. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// MaxRedirects bounds redirect following. Zero means
	// DefaultMaxRedirects; negative disables redirects entirely.
	MaxRedirects int
}

// Normalize returns a copy with defaults applied. A nil receiver yields a
// fully defaulted configuration.
func (c *SessionConfiguration) Normalize() *SessionConfiguration {
	out := &SessionConfiguration{}
	if c != nil {
		*out = *c
	}
	if out.RequestTimeout == 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	if out.MaxRedirects == 0 {
		out.MaxRedirects = DefaultMaxRedirects
	}
	return out
}

// HTTPClient builds an *http.Client honoring the configuration. The caller
// owns the client; sessions reuse one client for the probe, the handshake,
// and all subsequent requests.
func (c *SessionConfiguration) HTTPClient() (*http.Client, error) {
	cfg := c.Normalize()

	tlsConfig, err := cfg.tlsConfig()
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	var rt http.RoundTripper = transport
	if len(cfg.Headers) > 0 {
		rt = &headerTransport{base: transport, headers: cfg.Headers}
	}

	maxRedirects := cfg.MaxRedirects
	return &http.Client{
		Transport: rt,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if maxRedirects < 0 || len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			return nil
		},
	}, nil
}

func (c *SessionConfiguration) tlsConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.DisableTLSVerification,
	}

	if c.CAStorePath != "" {
		pem, err := os.ReadFile(c.CAStorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA store %s: %w", c.CAStorePath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA store %s", c.CAStorePath)
		}
		tlsConfig.RootCAs = pool
	}

	if c.ClientCertPath != "" {
		keyPath := c.ClientKeyPath
		if keyPath == "" {
			keyPath = c.ClientCertPath
		}
		cert, err := tls.LoadX509KeyPair(c.ClientCertPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// headerTransport injects configured headers into every outgoing request.
// Headers already present on the request are left alone.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for key, values := range t.headers {
		if clone.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			clone.Header.Add(key, v)
		}
	}
	return t.base.RoundTrip(clone)
}
