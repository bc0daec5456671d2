package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/bookstore/internal/auth"
)

// writeMethods are the methods that change the catalog.
var writeMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// IsWrite reports whether method mutates the catalog.
func IsWrite(method string) bool {
	return writeMethods[method]
}

// Auth requires authentication for write requests. Reads, preflights and
// the events stream stay public. A nil authenticator disables the check.
func Auth(authenticator auth.Authenticator, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if authenticator == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			id, err := authenticator.Authenticate(r)
			if err != nil {
				logger.Warn("rejected unauthenticated write",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("request_id", GetRequestID(r)),
					zap.Error(err),
				)
				setChallenge(w, err)
				WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}

			logger.Debug("authenticated write",
				zap.String("subject", id.Subject),
				zap.String("mode", string(id.Mode)),
				zap.String("path", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func setChallenge(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", `Basic realm="bookstore"`)
	case errors.Is(err, auth.ErrInvalidAPIKey):
		w.Header().Set("WWW-Authenticate", "API-Key")
	default:
		w.Header().Set("WWW-Authenticate", `Basic realm="bookstore", API-Key`)
	}
}
