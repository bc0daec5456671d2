// Package auth authenticates the callers allowed to change the catalog.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Mode names an authentication scheme.
type Mode string

// Supported modes.
const (
	ModeNone   Mode = "none"
	ModeBasic  Mode = "basic"
	ModeAPIKey Mode = "apikey"
	ModeMulti  Mode = "multi"
)

// Identity is the authenticated editor behind a request.
type Identity struct {
	Mode    Mode
	Subject string
}

// Authenticator validates a request and returns the caller's identity.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
	Mode() Mode
}

// Sentinel errors for authentication failures.
var (
	ErrUnauthenticated    = errors.New("unauthenticated: no credentials provided")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownMode        = errors.New("unknown auth mode")
)

// Settings selects and configures an authenticator.
type Settings struct {
	Mode Mode
	// BasicUsers has the form "user1:bcrypt_hash,user2:bcrypt_hash".
	BasicUsers string
	// APIKeys has the form "key1:name1,key2:name2".
	APIKeys string
}

// New builds the authenticator for s. ModeNone (or an empty mode) returns nil,
// meaning writes are open.
func New(s Settings) (Authenticator, error) {
	switch s.Mode {
	case ModeNone, "":
		return nil, nil
	case ModeBasic:
		return NewBasicAuthenticator(s.BasicUsers)
	case ModeAPIKey:
		return NewAPIKeyAuthenticator(s.APIKeys)
	case ModeMulti:
		var chain []Authenticator
		if s.BasicUsers != "" {
			ba, err := NewBasicAuthenticator(s.BasicUsers)
			if err != nil {
				return nil, err
			}
			chain = append(chain, ba)
		}
		if s.APIKeys != "" {
			ak, err := NewAPIKeyAuthenticator(s.APIKeys)
			if err != nil {
				return nil, err
			}
			chain = append(chain, ak)
		}
		if len(chain) == 0 {
			return nil, errors.New("multi auth: at least one of basic users or API keys is required")
		}
		return NewMultiAuthenticator(chain...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, s.Mode)
	}
}

// parsePairs splits "a:b,c:d" into a map. Blank entries are skipped.
func parsePairs(kind, raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s: config must not be empty", kind)
	}

	pairs := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		left, right, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%s: entry %q is not of the form a:b", kind, entry)
		}
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if left == "" || right == "" {
			return nil, fmt.Errorf("%s: entry has an empty side", kind)
		}
		pairs[left] = right
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%s: no entries found", kind)
	}
	return pairs, nil
}

type contextKey struct{}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}
