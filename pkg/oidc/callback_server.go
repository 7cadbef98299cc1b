package oidc

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

//go:embed templates/login_success.html
var loginSuccessHTML string

//go:embed templates/login_error.html
var loginErrorHTML string

// CallbackResult is what the authorization server sent to the redirect URI.
type CallbackResult struct {
	// Code is the authorization code on success.
	Code string

	// State echoes the state parameter of the authorization request.
	State string

	// Error and ErrorDescription are set when authorization failed.
	Error            string
	ErrorDescription string
}

// IsError reports whether the authorization server returned an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is a short-lived loopback HTTP server that receives one
// authorization callback and then shuts down.
type CallbackServer struct {
	addr        string
	path        string
	server      *http.Server
	listener    net.Listener
	resultCh    chan *CallbackResult
	errorCh     chan error
	once        sync.Once
	redirectURI string
}

// NewCallbackServer creates a callback server for the given redirect URI.
// The URI must point at the loopback interface. An empty URI binds a random
// port on 127.0.0.1 with the path /callback.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	addr := "127.0.0.1:0"
	path := "/callback"

	if redirectURI != "" {
		parsed, err := url.Parse(redirectURI)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
		}
		if !loopbackHost(parsed.Hostname()) {
			return nil, fmt.Errorf("redirect URI %q is not a loopback address", redirectURI)
		}
		port := parsed.Port()
		if port == "" {
			port = "0"
		}
		addr = net.JoinHostPort("127.0.0.1", port)
		if parsed.Path != "" {
			path = parsed.Path
		}
	}

	return &CallbackServer{
		addr:     addr,
		path:     path,
		resultCh: make(chan *CallbackResult, 1),
		errorCh:  make(chan error, 1),
	}, nil
}

// Start begins listening and returns the effective redirect URI to use in
// the authorization request. The server stops when the context is
// cancelled or after the first callback.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", s.addr, err)
	}
	s.listener = listener

	port := listener.Addr().(*net.TCPAddr).Port
	s.redirectURI = fmt.Sprintf("http://localhost:%d%s", port, s.path)

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.redirectURI, nil
}

// Wait blocks until the callback arrives, the server fails, or the context
// expires.
func (s *CallbackServer) Wait(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RedirectURI returns the URI the server listens on. Valid after Start.
func (s *CallbackServer) RedirectURI() string {
	return s.redirectURI
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	var tmpl *template.Template
	var data interface{}
	if result.IsError() {
		tmpl = template.Must(template.New("error").Parse(loginErrorHTML))
		data = map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		}
	} else {
		tmpl = template.Must(template.New("success").Parse(loginSuccessHTML))
		data = map[string]string{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Let the response flush before tearing the server down.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// Stop shuts the callback server down.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// loopbackHost reports whether host is a loopback name or address.
func loopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
