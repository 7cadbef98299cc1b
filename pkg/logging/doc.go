// Package logging provides structured logging for the apisession library.
//
// It is a thin wrapper around log/slog that tags every entry with the
// subsystem that produced it ("Challenge", "Session", "OIDC", ...), so that
// callers can trace authentication negotiation without configuring
// per-package loggers.
//
// Credential material (passwords, tokens, authorization codes) is never
// passed to this package. Call sites log URLs, scheme names, and expiry
// metadata only.
package logging
