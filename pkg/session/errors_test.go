package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthenticationMismatchErrorMessage(t *testing.T) {
	err := &AuthenticationMismatchError{
		Configured: "credentials",
		Advertised: []string{"Bearer", "Negotiate"},
	}
	assert.Equal(t,
		"unable to connect with credentials credentials: the server supports Bearer, Negotiate",
		err.Error())

	empty := &AuthenticationMismatchError{Configured: "oidc"}
	assert.Contains(t, empty.Error(), "no authentication schemes")
}

func TestConnectionErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")

	connErr := &ConnectionError{URL: "http://example.com", Err: cause}
	assert.ErrorIs(t, connErr, cause)
	assert.Contains(t, connErr.Error(), "http://example.com")

	timeoutErr := &TimeoutError{URL: "http://example.com", Err: cause}
	assert.ErrorIs(t, timeoutErr, cause)
	assert.Contains(t, timeoutErr.Error(), "timed out")
}

func TestErrorTypesAreDistinguishable(t *testing.T) {
	errs := []error{
		newConfigurationError("bad setup"),
		&ConnectionError{URL: "u", Err: errors.New("x")},
		&TimeoutError{URL: "u", Err: errors.New("x")},
		&AuthenticationMismatchError{Configured: "basic"},
		&AuthenticationFailedError{Method: "basic", Status: 401},
		&HandshakeFailedError{Scheme: "NTLM", Rounds: 5, Status: 401},
	}

	var (
		confErr      *ConfigurationError
		connErr      *ConnectionError
		timeoutErr   *TimeoutError
		mismatchErr  *AuthenticationMismatchError
		failedErr    *AuthenticationFailedError
		handshakeErr *HandshakeFailedError
	)
	targets := []interface{}{&confErr, &connErr, &timeoutErr, &mismatchErr, &failedErr, &handshakeErr}

	for i, err := range errs {
		for j, target := range targets {
			matched := errors.As(err, target)
			assert.Equal(t, i == j, matched, "error %d vs target %d", i, j)
		}
	}
}

func TestAuthenticationFailedErrorMessage(t *testing.T) {
	err := &AuthenticationFailedError{Method: "credentials", Status: 401}
	assert.Equal(t, "the server rejected the credentials credentials (status 401)", err.Error())
}

func TestHandshakeFailedErrorMessage(t *testing.T) {
	err := &HandshakeFailedError{Scheme: "Negotiate", Rounds: 5, Status: 401}
	assert.Contains(t, err.Error(), "Negotiate")
	assert.Contains(t, err.Error(), "5 rounds")
	assert.Contains(t, err.Error(), "401")
}
