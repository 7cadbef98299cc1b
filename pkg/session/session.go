package session

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"apisession/pkg/challenge"
	"apisession/pkg/logging"
	"apisession/pkg/oidc"
)

// maxHandshakeRounds bounds challenge-response exchanges. NTLM completes
// in two rounds; anything still challenging past this limit is broken.
const maxHandshakeRounds = 5

// Session is an authenticated HTTP session against one API server. It is
// safe for concurrent use; every request it issues carries the credentials
// negotiated at connect time.
type Session struct {
	apiURL  string
	client  *http.Client
	strat   *strategy
	warning string
}

// APIURL returns the base URL the session was connected against.
func (s *Session) APIURL() string {
	return s.apiURL
}

// Mode returns the authentication mode the session operates with.
func (s *Session) Mode() Mode {
	return s.strat.mode
}

// Scheme returns the wire-level authentication scheme in use, or "" for
// anonymous sessions.
func (s *Session) Scheme() string {
	return s.strat.SchemeName()
}

// Warning returns a non-fatal notice produced while connecting, such as
// credentials being configured for a server that allows anonymous access.
func (s *Session) Warning() string {
	return s.warning
}

// TokenManager returns the OIDC token manager backing the session, or nil
// for non-OIDC sessions.
func (s *Session) TokenManager() *oidc.TokenManager {
	return s.strat.tokens
}

// Close releases resources held by the session.
func (s *Session) Close() {
	if s.strat.tokens != nil {
		s.strat.tokens.Close()
	}
}

// NewRequest builds a request whose URL is resolved against the session's
// API URL. Absolute URLs pass through unchanged.
func (s *Session) NewRequest(ctx context.Context, method, ref string, body io.Reader) (*http.Request, error) {
	base, err := url.Parse(s.apiURL)
	if err != nil {
		return nil, err
	}
	target, err := base.Parse(ref)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, method, target.String(), body)
}

// Do sends the request with the session's credentials attached. A 401 is
// handled per mode: handshake modes run their challenge exchange, OIDC
// forces one token refresh and retries once. The caller owns the response
// body.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := s.strat.prepare(ctx, req); err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, wrapTransportError(req.URL.String(), err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	switch s.strat.mode {
	case ModeHandshake:
		return s.runHandshake(req, resp)
	case ModeOIDC:
		return s.retryWithFreshToken(req, resp)
	default:
		return resp, nil
	}
}

// retryWithFreshToken handles an OIDC 401: the server may have revoked a
// token the client still considers valid, so force one refresh and retry.
// A second 401 is returned to the caller.
func (s *Session) retryWithFreshToken(req *http.Request, resp *http.Response) (*http.Response, error) {
	retry, err := replayableRequest(req)
	if err != nil {
		return resp, nil
	}
	drain(resp)

	logging.Debug("Session", "Server rejected bearer token, forcing a refresh")
	token, err := s.strat.tokens.ForceRefresh(req.Context())
	if err != nil {
		return nil, err
	}

	retry.Header.Set("Authorization", "Bearer "+token)
	newResp, err := s.client.Do(retry)
	if err != nil {
		return nil, wrapTransportError(req.URL.String(), err)
	}
	return newResp, nil
}

// runHandshake performs the challenge-response exchange after the server's
// initial 401. Each round replays the original request with the next
// Authorization token; responses between rounds are drained so the
// exchange stays on one connection.
func (s *Session) runHandshake(req *http.Request, resp *http.Response) (*http.Response, error) {
	challenges := challenge.FromResponse(resp)
	if !challenges.Has(s.strat.scheme) {
		return resp, nil
	}
	drain(resp)

	header, err := s.strat.initialHandshakeHeader()
	if err != nil {
		return nil, err
	}

	lastStatus := http.StatusUnauthorized
	for round := 1; round <= maxHandshakeRounds; round++ {
		next, err := replayableRequest(req)
		if err != nil {
			return nil, err
		}
		next.Header.Set("Authorization", header)

		resp, err := s.client.Do(next)
		if err != nil {
			return nil, wrapTransportError(req.URL.String(), err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}
		lastStatus = resp.StatusCode

		c, ok := challenge.FromResponse(resp).Get(s.strat.scheme)
		if !ok || c.Token68 == "" {
			// The server gave up on the exchange.
			return resp, nil
		}
		drain(resp)

		header, _, err = s.strat.continueHandshakeHeader(c.Token68)
		if err != nil {
			return nil, err
		}
	}

	return nil, &HandshakeFailedError{
		Scheme: s.strat.scheme,
		Rounds: maxHandshakeRounds,
		Status: lastStatus,
	}
}

// replayableRequest clones a request for re-sending, rewinding the body
// where possible.
func replayableRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("cannot retry request: body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// drain consumes and closes a response body so the underlying connection
// can be reused. Handshakes depend on this: the exchange authenticates a
// connection, not a request.
func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
	}
}

// wrapTransportError classifies a transport-level failure into the
// session's error taxonomy.
func wrapTransportError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{URL: url, Err: err}
	}
	// http.Client reports its own timeout without implementing net.Error.
	if strings.Contains(err.Error(), "Client.Timeout exceeded") {
		return &TimeoutError{URL: url, Err: err}
	}
	return &ConnectionError{URL: url, Err: err}
}
