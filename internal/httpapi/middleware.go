package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const maxBodyBytes = 10 << 20 // 10 MiB

// withLimitedBody caps the request body at maxBodyBytes; oversize bodies
// fail with the framework default behavior (reads past the cap return an
// *http.MaxBytesError).
func withLimitedBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// withCORSReject rejects any request carrying a non-empty Origin header.
// Only non-browser callers, which omit Origin, are permitted through.
func withCORSReject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != "" {
			writeJSONError(w, http.StatusForbidden, "Request denied by CORS policy.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withHostAllowList requires the Host header to name this server's own
// loopback address.
func withHostAllowList(port int) func(http.Handler) http.Handler {
	allowed := map[string]struct{}{
		fmt.Sprintf("localhost:%d", port):  {},
		fmt.Sprintf("127.0.0.1:%d", port):  {},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[r.Host]; !ok {
				writeJSONError(w, http.StatusForbidden, "Invalid Host header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withBearerAuth requires Authorization: Bearer <token> to match the
// process-lifetime auth token. Missing or malformed headers are also
// rejected.
func withBearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, prefix) || header[len(prefix):] != token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
