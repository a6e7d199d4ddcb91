package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"

	"motorshield/host/metrics"
)

// RequestLogger logs one line per request, at warn for 4xx and error for
// 5xx responses, and records it in the HTTP metrics.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			duration := time.Since(start)
			route := routeLabel(r)
			metrics.RecordHTTPRequest(r.Method, route, status, duration)

			event := logger.Info()
			if status >= 500 {
				event = logger.Error()
			} else if status >= 400 {
				event = logger.Warn()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", status).
				Dur("duration", duration).
				Str("client_ip", r.RemoteAddr).
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("bytes", ww.BytesWritten()).
				Msg("http_request")
		})
	}
}

// routeLabel is the matched route pattern, e.g. /shields/{shield}/dc/{motor}/start,
// so metrics do not grow a series per shield index.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.RoutePatterns) == 0 {
		return "unmatched"
	}
	route := strings.Join(rctx.RoutePatterns, "")
	route = strings.Replace(route, "/*/", "/", -1)
	route = strings.TrimSuffix(route, "/*")
	if len(route) > 1 {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}
