package chi

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// exemptPaths are routes that bypass authentication (info, health, metrics).
var exemptPaths = map[string]struct{}{
	"/":        {},
	"/health":  {},
	"/metrics": {},
}

type identityKey struct{}

// IdentityFromContext returns the rate limit identity stored by APIKeyMiddleware.
func IdentityFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextWithIdentity stores the rate limit identity.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// APIKeyMiddleware validates the X-API-Key header (or an Authorization Bearer token)
// and records the caller identity for rate limiting.
// If apiKeys is empty, authentication is disabled and the identity is the client IP.
func APIKeyMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	validKeys := make([]string, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys = append(validKeys, k)
		}
	}

	return func(next http.Handler) http.Handler {
		if len(validKeys) == 0 {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := ContextWithIdentity(r.Context(), "ip:"+clientIP(r))
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			key, err := presentedKey(r)
			if err != "" {
				writeError(w, r, http.StatusUnauthorized, ErrorCodeUnauthorized, err)
				return
			}
			if !keyValid(validKeys, key) {
				writeError(w, r, http.StatusForbidden, ErrorCodeForbidden, "invalid api key")
				return
			}

			ctx := ContextWithIdentity(r.Context(), "key:"+key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// presentedKey extracts the caller's key. A non-empty second value describes why none was found.
func presentedKey(r *http.Request) (string, string) {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k, ""
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "missing api key"
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(auth, bearerPrefix) {
		return "", "authorization header must use Bearer scheme"
	}
	return auth[len(bearerPrefix):], ""
}

func keyValid(keys []string, key string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
