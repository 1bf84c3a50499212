package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Incoming request IDs are accepted only if short and printable ASCII, so a
// hostile client cannot smuggle arbitrary bytes into logs.
const maxRequestIDLen = 128

type requestIDKey struct{}

// RequestIDFromContext extracts the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID ensures every request carries an identifier. A valid incoming
// X-Request-ID is reused so IDs stay stable across proxies; otherwise a new
// UUID is generated. The ID is echoed on the response and stored in the
// request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !validRequestID(id) {
				id = uuid.New().String()
			}

			w.Header().Set(requestIDHeader, id)

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), requestIDKey{}, id),
			))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
