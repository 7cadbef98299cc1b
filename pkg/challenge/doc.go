// Package challenge parses WWW-Authenticate response headers into structured
// authentication challenges.
//
// A server may advertise several schemes at once, either by repeating the
// header or by combining challenges in one comma-separated value:
//
//	WWW-Authenticate: Negotiate, Basic realm="example"
//	WWW-Authenticate: Bearer realm="https://idp.example.com", scope="openid"
//
// The parser follows RFC 7235 permissively: quoted strings may contain
// commas and equals signs, scheme names are compared case-insensitively,
// and malformed fragments are dropped rather than failing the whole header.
// Servers are not reliably RFC-compliant in practice, so Parse never
// returns an error.
package challenge
