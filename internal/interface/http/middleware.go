package http

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/admissions-hub/admissions-hub/internal/interface/http/handlers"
	"github.com/admissions-hub/admissions-hub/pkg/logger"
)

// middleware returns the server-wide stack, outermost first. CORS runs
// before recovery so preflight answers never reach the router.
func (s *Server) middleware() []handlers.MiddlewareFunc {
	stack := []handlers.MiddlewareFunc{
		cors.New(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         86400,
		}).Handler,
		s.recoverPanics,
		s.tagRequest,
		s.logRequest,
		handlers.SecurityHeadersMiddleware,
	}
	if s.limiter != nil {
		stack = append(stack, s.limitRate)
	}
	if s.config.MaxBodyBytes > 0 {
		stack = append(stack, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
	}
	return stack
}

const requestIDHeader = "X-Request-ID"

type ctxKeyRequestID struct{}

// tagRequest reuses the caller's X-Request-ID or mints one, and attaches a
// request-scoped logger to the context.
func (s *Server) tagRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, id)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.FromContext(r.Context()).Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Latency(time.Since(start)),
			logger.String("ip", clientIP(r)),
		)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			s.logger.Error("panic recovered",
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())),
				logger.String("path", r.URL.Path),
				logger.String(logger.RequestIDKey, getRequestID(r.Context())),
			)
			writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter.Allow(clientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "60")
		writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
	})
}

// clientIP trusts the first X-Forwarded-For hop, then X-Real-IP. The API is
// only reachable through the ingress, which sets both.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// rateLimiter is a sliding-window counter per key. A background sweep drops
// keys that have been idle for a whole window.
type rateLimiter struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		stop:   make(chan struct{}),
	}
	go rl.sweep(window)
	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := trimBefore(rl.hits[key], now.Add(-rl.window))
	allowed := len(recent) < rl.limit
	if allowed {
		recent = append(recent, now)
	}
	rl.hits[key] = recent
	return allowed
}

func (rl *rateLimiter) Stop() { rl.stopOnce.Do(func() { close(rl.stop) }) }

func (rl *rateLimiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-t.C:
			rl.mu.Lock()
			for key, ts := range rl.hits {
				if ts = trimBefore(ts, now.Add(-rl.window)); len(ts) == 0 {
					delete(rl.hits, key)
				} else {
					rl.hits[key] = ts
				}
			}
			rl.mu.Unlock()
		}
	}
}

// trimBefore drops timestamps not after cutoff, reusing ts's backing array.
func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
