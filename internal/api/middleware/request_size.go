package middleware

import "net/http"

// DefaultMaxBodySize bounds request bodies on the JSON API.
const DefaultMaxBodySize int64 = 1 << 20 // 1MB

// RequestSize wraps the request body with http.MaxBytesReader so oversized
// payloads fail with 413 instead of being buffered.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
