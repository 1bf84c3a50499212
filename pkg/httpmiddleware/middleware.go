// Package httpmiddleware provides net/http middleware used by the API server:
// panic recovery, CORS, rate limiting, request IDs, request logging, and
// OpenTelemetry instrumentation.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Middleware is a function that wraps an http.Handler with additional
// behaviour.
type Middleware = func(http.Handler) http.Handler

// Wrap applies middlewares to the handler. The first middleware in the list
// becomes the outermost one, i.e. it sees the request first.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// InjectLogger returns a middleware that places lg into the request context,
// so downstream handlers can retrieve it with zctx.From.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), lg)))
		})
	}
}

// Instrument returns a middleware that records OpenTelemetry spans and
// metrics for each request, using chi's matched route pattern as the span
// name so that /api/orders/{id} requests share one span name.
func Instrument(serviceName string, m *app.Telemetry) Middleware {
	return otelhttp.NewMiddleware(serviceName,
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
		otelhttp.WithPropagators(m.TextMapPropagator()),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			if pattern := routePattern(r); pattern != "" {
				return r.Method + " " + pattern
			}
			return operation
		}),
	)
}

// LogRequests returns a middleware that logs one line per request with the
// method, path, matched route, status, byte count, and duration.
func LogRequests() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			lg := zctx.From(r.Context())
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Int("bytes", sw.written),
				zap.Duration("duration", time.Since(start)),
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if pattern := routePattern(r); pattern != "" {
				fields = append(fields, zap.String("route", pattern))
			}
			lg.Info("Request", fields...)
		})
	}
}

// routePattern returns the chi route pattern matched for the request,
// e.g. "/api/orders/{orderID}/confirm", or "" when routing has not happened.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// statusWriter captures the response status code and byte count.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}
