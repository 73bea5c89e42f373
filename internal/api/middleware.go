// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package api exposes the engine's local HTTP surface with the Chi router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/avoronkov/eventscope/internal/logging"
)

// MiddlewareConfig holds the middleware knobs taken from the server
// config section.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// Middleware provides the Chi middleware stack.
type Middleware struct {
	cfg  MiddlewareConfig
	cors func(http.Handler) http.Handler
}

// NewMiddleware builds the middleware stack from config.
func NewMiddleware(cfg MiddlewareConfig) *Middleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	})

	return &Middleware{cfg: cfg, cors: corsHandler}
}

// CORS returns the go-chi/cors middleware.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns IP-keyed rate limiting via go-chi/httprate. Zero
// configured requests disables limiting.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.cfg.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		m.cfg.RateLimitRequests,
		m.cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// RequestLogger assigns a request id and logs each request with method,
// path, status and duration.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ww := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			logging.Debug().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.statusCode).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// statusResponseWriter captures the response status for logging.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
