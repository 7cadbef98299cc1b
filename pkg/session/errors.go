package session

import (
	"fmt"
	"strings"
)

// ConfigurationError indicates the builder was used incorrectly: a credential
// mode was set twice, or Connect was called before any mode was chosen.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("session configuration error: %s", e.Message)
}

func newConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ConnectionError indicates the server could not be reached at the transport
// level: DNS failure, refused connection, TLS handshake failure.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates a request exceeded its deadline, either the
// configured request timeout or a caller-supplied context deadline.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// AuthenticationMismatchError indicates the server does not advertise the
// authentication scheme the session was configured for. It names both sides
// so the caller can see what would have worked.
type AuthenticationMismatchError struct {
	// Configured is the authentication mode chosen on the builder.
	Configured string

	// Advertised lists the schemes the server offered, in server order.
	// Empty when the server returned 401 without a WWW-Authenticate header.
	Advertised []string
}

func (e *AuthenticationMismatchError) Error() string {
	if len(e.Advertised) == 0 {
		return fmt.Sprintf("unable to connect with %s credentials: the server advertised no authentication schemes", e.Configured)
	}
	return fmt.Sprintf("unable to connect with %s credentials: the server supports %s", e.Configured, strings.Join(e.Advertised, ", "))
}

// AuthenticationFailedError indicates the server rejected the configured
// credentials: the advertised scheme matched, the credentials did not.
type AuthenticationFailedError struct {
	// Method is the authentication mode chosen on the builder.
	Method string

	// Status is the HTTP status the verification request came back with.
	Status int
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("the server rejected the %s credentials (status %d)", e.Method, e.Status)
}

// HandshakeFailedError indicates a multi-round authentication handshake did
// not converge: the server kept challenging past the round limit or rejected
// a continuation token.
type HandshakeFailedError struct {
	Scheme string
	Rounds int
	Status int
}

func (e *HandshakeFailedError) Error() string {
	return fmt.Sprintf("%s handshake failed after %d rounds (last status %d)", e.Scheme, e.Rounds, e.Status)
}
