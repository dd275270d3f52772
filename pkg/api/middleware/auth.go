package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// APIKeyHeader carries the API key
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests without one of keys in the X-API-Key header or
// an "Authorization: Bearer" header. With no keys configured every request
// passes.
func APIKeyAuth(keys []string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if key == "" {
				writeUnauthorized(w, "missing API key")
				return
			}
			if !validAPIKey(keys, key) {
				logger.Warn("invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("ip", extractClientIP(r)),
				)
				writeUnauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validAPIKey compares in constant time
func validAPIKey(keys []string, provided string) bool {
	for _, key := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(provided)) == 1 {
			return true
		}
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
