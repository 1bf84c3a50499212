package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery converts panics into 500 responses. The panic value and stack are
// logged through the request-scoped logger so they carry the request ID.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer recoverPanic(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

func recoverPanic(w http.ResponseWriter, r *http.Request) {
	rec := recover()
	if rec == nil {
		return
	}

	zctx.From(r.Context()).Error("Panic recovered",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Any("panic", rec),
		zap.Stack("stack"),
	)

	// The connection may hold half-written state, force it closed.
	w.Header().Set("Connection", "close")
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
