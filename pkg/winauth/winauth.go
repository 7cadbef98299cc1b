// Package winauth produces the per-round tokens for Windows Integrated
// Authentication handshakes (NTLM and Negotiate).
//
// The session layer drives the handshake loop; this package only computes
// tokens. NTLM with explicit credentials works on every platform through
// the pure-Go message implementation. Platform single-sign-on (Kerberos via
// SSPI or GSSAPI) can be plugged in by implementing Authenticator.
package winauth

import (
	"errors"

	"github.com/Azure/go-ntlmssp"
)

// Authenticator computes the client tokens of a challenge-response
// authentication handshake.
type Authenticator interface {
	// InitialToken returns the token that opens the handshake.
	InitialToken() ([]byte, error)

	// ProcessChallenge consumes the server's challenge token and returns
	// the next client token. done reports that this token completes the
	// client side of the handshake.
	ProcessChallenge(token []byte) (response []byte, done bool, err error)
}

// NTLMAuthenticator performs the three-message NTLM handshake with explicit
// credentials. The username may carry a domain as DOMAIN\user or user@domain.
type NTLMAuthenticator struct {
	user         string
	password     string
	domain       string
	domainNeeded bool
}

// NewNTLM splits the domain out of username and returns an authenticator
// for those credentials.
func NewNTLM(username, password string) *NTLMAuthenticator {
	user, domain, domainNeeded := ntlmssp.GetDomain(username)
	return &NTLMAuthenticator{
		user:         user,
		password:     password,
		domain:       domain,
		domainNeeded: domainNeeded,
	}
}

// InitialToken returns the NTLM negotiate message.
func (a *NTLMAuthenticator) InitialToken() ([]byte, error) {
	return ntlmssp.NewNegotiateMessage(a.domain, "")
}

// ProcessChallenge consumes the server's challenge message and returns the
// authenticate message, which completes the client side of the handshake.
func (a *NTLMAuthenticator) ProcessChallenge(token []byte) ([]byte, bool, error) {
	if len(token) == 0 {
		return nil, false, errors.New("empty challenge token")
	}
	authenticate, err := ntlmssp.ProcessChallenge(token, a.user, a.password, a.domainNeeded)
	if err != nil {
		return nil, false, err
	}
	return authenticate, true, nil
}
