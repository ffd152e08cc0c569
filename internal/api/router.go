package api

import (
	"log/slog"
	"net/http"
)

// RouterOptions toggles the optional surfaces of the router.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimit      RateLimitConfig
	DebugEndpoint  bool
	Metrics        http.Handler // served on /metrics when set
	Logger         *slog.Logger
}

// NewRouter setup routes and apply global middleware
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Status)
	mux.Handle("POST /convert", RateLimitMiddleware(opts.RateLimit)(http.HandlerFunc(h.Convert)))
	if opts.DebugEndpoint {
		mux.HandleFunc("GET /debug", h.Debug)
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	var handler http.Handler = mux
	handler = CORSMiddleware(opts.AllowedOrigins)(handler)
	handler = AccessLogMiddleware(opts.Logger)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}
