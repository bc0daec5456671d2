package auth

import (
	"errors"
	"net/http"
)

// MultiAuthenticator tries each authenticator in order. A request without
// credentials for one scheme falls through to the next; presented but wrong
// credentials fail immediately.
type MultiAuthenticator struct {
	chain []Authenticator
}

// NewMultiAuthenticator creates a MultiAuthenticator over chain.
func NewMultiAuthenticator(chain ...Authenticator) *MultiAuthenticator {
	return &MultiAuthenticator{chain: chain}
}

// Authenticate returns the first successful identity.
func (a *MultiAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	for _, next := range a.chain {
		id, err := next.Authenticate(r)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
	}
	return nil, ErrUnauthenticated
}

// Mode returns ModeMulti.
func (a *MultiAuthenticator) Mode() Mode {
	return ModeMulti
}
