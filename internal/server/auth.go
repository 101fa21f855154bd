package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/veildata/veil/internal/requestctx"
)

// AuthMiddleware validates X-Veil-Key or Authorization: Bearer <key> and
// stores the caller name in the request context. apiKeys maps key to
// caller name. With no configured keys the API is open and callers are
// identified by remote address.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(apiKeys) == 0 {
				r = r.WithContext(requestctx.SetCaller(r.Context(), remoteHost(r)))
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-Veil-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			var caller string
			for k, name := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					caller = name
					break
				}
			}
			if caller == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			r = r.WithContext(requestctx.SetCaller(r.Context(), caller))
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
