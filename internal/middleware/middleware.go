package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/observability"
)

type Middleware func(http.Handler) http.Handler

func Chain(middlewares ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = generateRequestID()
			}

			w.Header().Set("X-Request-ID", requestID)
			ctx := observability.WithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logger logs one line per request. Server errors log at error level and
// client errors at warn.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			reqLogger := observability.FromContext(r.Context(), logger)
			reqLogger.Debug("request started",
				"method", r.Method,
				"url", r.URL.String(),
				"user_agent", r.UserAgent(),
				"remote_addr", r.RemoteAddr,
			)

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= http.StatusInternalServerError:
				level = slog.LevelError
			case wrapped.statusCode >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			reqLogger.Log(r.Context(), level, "request completed",
				"method", r.Method,
				"url", r.URL.String(),
				"status", wrapped.statusCode,
				"bytes", wrapped.written,
				"duration", time.Since(start),
			)
		})
	}
}

// Tracing opens a span per request and logs it when the request finishes.
// Spans opened further down the stack share its trace id.
func Tracing(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := observability.StartSpan(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path))
			span.SetTag("request_id", observability.GetRequestID(r.Context()))

			span.SetTag("http.method", r.Method)
			span.SetTag("http.url", r.URL.String())
			span.SetTag("http.user_agent", r.UserAgent())

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			span.SetTag("http.status_code", strconv.Itoa(wrapped.statusCode))

			if wrapped.statusCode >= 400 {
				span.SetError(fmt.Errorf("HTTP %d", wrapped.statusCode))
			}
			span.Finish()
			observability.LogSpan(logger, span)
		})
	}
}

func CORS(config config.SecurityConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if isAllowedOrigin(origin, config.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval' https://cdn.jsdelivr.net; style-src 'self' 'unsafe-inline'; connect-src 'self'")

			next.ServeHTTP(w, r)
		})
	}
}

const (
	maxTrackedClients = 10000
	limiterIdleTTL    = time.Minute
)

// RateLimiter keeps one token bucket per client IP. Buckets idle for
// limiterIdleTTL are evicted, as are the oldest ones past maxTrackedClients.
type RateLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	config   config.SecurityConfig
	mu       sync.Mutex
}

func NewRateLimiter(config config.SecurityConfig) *RateLimiter {
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, limiterIdleTTL),
		config:   config,
	}
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.config.RateLimitRPS), rl.config.RateLimitBurst)
	}
	// Re-adding refreshes the idle TTL.
	rl.limiters.Add(ip, limiter)
	return limiter
}

func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.config.EnableRateLimit {
		return true
	}

	limiter := rl.getLimiter(ip)
	return limiter.Allow()
}

func RateLimit(limiter *RateLimiter, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			if !limiter.Allow(ip) {
				requestID := observability.GetRequestID(r.Context())
				err := errors.RateLimit("Too many requests")

				logger.Warn("rate limit exceeded",
					"ip", ip,
					"request_id", requestID,
				)

				errors.WriteError(w, logger, err, requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func TrustedProxy(config config.SecurityConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isTrustedProxy(r.RemoteAddr, config.TrustedProxies) {
				r.Header.Del("X-Forwarded-For")
				r.Header.Del("X-Real-IP")
				r.Header.Del("X-Forwarded-Proto")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID := observability.GetRequestID(r.Context())

					logger.Error("panic recovered",
						"error", err,
						"request_id", requestID,
						"method", r.Method,
						"url", r.URL.String(),
					)

					appErr := errors.Internal("An unexpected error occurred")
					errors.WriteError(w, logger, appErr, requestID)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter does
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func generateRequestID() string {
	return uuid.NewString()
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func isAllowedOrigin(origin string, allowed []string) bool {
	for _, allowedOrigin := range allowed {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}
	return false
}

func isTrustedProxy(remoteAddr string, trusted []string) bool {
	host, _, _ := net.SplitHostPort(remoteAddr)

	for _, trustedIP := range trusted {
		if trustedIP == host {
			return true
		}
	}
	return false
}
