package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the key for API key authentication.
const APIKeyHeader = "X-API-Key"

type apiKey struct {
	digest [sha256.Size]byte
	name   string
}

// APIKeyAuthenticator matches the X-API-Key header against configured keys.
// Only key digests are kept; every key is compared in constant time.
type APIKeyAuthenticator struct {
	keys []apiKey
}

// NewAPIKeyAuthenticator parses "key:name" pairs separated by commas.
func NewAPIKeyAuthenticator(keys string) (*APIKeyAuthenticator, error) {
	pairs, err := parsePairs("apikey auth", keys)
	if err != nil {
		return nil, err
	}

	a := &APIKeyAuthenticator{keys: make([]apiKey, 0, len(pairs))}
	for key, name := range pairs {
		a.keys = append(a.keys, apiKey{digest: sha256.Sum256([]byte(key)), name: name})
	}
	return a, nil
}

// Authenticate resolves the presented key to its configured name.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	presented := r.Header.Get(APIKeyHeader)
	if presented == "" {
		return nil, ErrUnauthenticated
	}

	digest := sha256.Sum256([]byte(presented))
	var match *apiKey
	for i := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], a.keys[i].digest[:]) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidAPIKey
	}

	return &Identity{Mode: ModeAPIKey, Subject: match.name}, nil
}

// Mode returns ModeAPIKey.
func (a *APIKeyAuthenticator) Mode() Mode {
	return ModeAPIKey
}
