// Package session negotiates authentication with an API server and issues
// requests through the resulting authenticated session.
//
// A Builder is configured with exactly one authentication method, then
// Connect probes the server with an unauthenticated GET and matches the
// configuration against the WWW-Authenticate challenges the server
// returns. Supported methods are anonymous access, Basic, NTLM (with
// explicit credentials or platform autologon, under the NTLM or Negotiate
// scheme), and OIDC via a Bearer token.
//
// Failures are reported through a small set of typed errors so callers can
// distinguish a misconfigured builder (ConfigurationError), an unreachable
// server (ConnectionError, TimeoutError), a server that does not speak the
// configured scheme (AuthenticationMismatchError), rejected credentials
// (AuthenticationFailedError), and a handshake that did not converge
// (HandshakeFailedError).
package session
