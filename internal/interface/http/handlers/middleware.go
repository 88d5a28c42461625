package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// MiddlewareFunc wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middleware so that the first one sees the request first.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

func ChainHandler(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(h)
}

// withHeaders sets fixed response headers before calling next.
func withHeaders(kv ...string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for i := 0; i+1 < len(kv); i += 2 {
				w.Header().Set(kv[i], kv[i+1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware: the API only serves JSON, so nothing may be
// framed, sniffed or loaded from it.
var SecurityHeadersMiddleware = withHeaders(
	"X-Content-Type-Options", "nosniff",
	"X-Frame-Options", "DENY",
	"Referrer-Policy", "strict-origin-when-cross-origin",
	"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'",
)

// NoCacheMiddleware guards student and admin routes.
var NoCacheMiddleware = withHeaders(
	"Cache-Control", "no-store, no-cache, must-revalidate, max-age=0",
	"Pragma", "no-cache",
)

// CacheControlMiddleware lets clients cache catalog reads for maxAge.
// Non-GET requests are never cacheable.
func CacheControlMiddleware(maxAge time.Duration) MiddlewareFunc {
	public := "public, max-age=" + strconv.Itoa(max(int(maxAge.Seconds()), 0))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := "no-store"
			if r.Method == http.MethodGet {
				value = public
			}
			w.Header().Set("Cache-Control", value)
			next.ServeHTTP(w, r)
		})
	}
}

// RequestSizeLimitMiddleware rejects declared oversize bodies up front and
// caps undeclared ones while they are read.
func RequestSizeLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
