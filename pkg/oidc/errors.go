package oidc

import "fmt"

// ReauthenticationRequiredError indicates the stored credential can no
// longer be refreshed: the provider rejected the refresh token, or no
// refresh token exists. The user must log in again.
type ReauthenticationRequiredError struct {
	Authority string
	Reason    string
}

func (e *ReauthenticationRequiredError) Error() string {
	return fmt.Sprintf("re-authentication with %s required: %s", e.Authority, e.Reason)
}
