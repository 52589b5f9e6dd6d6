package server

import (
	"crypto/subtle"
	"net/http"
)

const apiKeyHeader = "X-API-Key"

// authMiddleware checks the API key header. With no key configured the
// server is open, which is the local single-user mode.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
