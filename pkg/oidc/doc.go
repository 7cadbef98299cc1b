// Package oidc obtains and maintains OpenID Connect tokens for API access.
//
// The provider configuration usually arrives in the server's Bearer
// challenge (authority, client ID, redirect URI, scopes); the package
// discovers the remaining endpoints from the authority's well-known
// document. Tokens can be obtained three ways: an interactive browser
// login, a caller-supplied refresh token, or a credential persisted by an
// earlier login.
//
// TokenManager keeps the access token fresh. It refreshes ahead of expiry
// with a 30 second skew allowance and collapses concurrent refresh attempts
// into a single token endpoint call.
package oidc
