package http

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleet-monitor/realtime/internal/auth"
	"fleet-monitor/realtime/internal/logging"
)

type AuthMiddleware struct {
	auth *auth.Authenticator
}

func NewAuthMiddleware(a *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: a}
}

// Wrap rejects requests without a valid X-API-Key header.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			fail(w, http.StatusUnauthorized, "missing X-API-Key header", nil)
			return
		}

		if !m.auth.Validate(r.Context(), apiKey) {
			fail(w, http.StatusUnauthorized, "invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

// ClaimsFromContext returns the operator claims set by JWTAuth.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return c
}

// JWTAuth requires a valid bearer token.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				fail(w, http.StatusUnauthorized, "Authentication required. No token provided.", nil)
				return
			}

			claims, err := jwtService.ValidateToken(parts[1])
			if err != nil {
				logging.FromContext(r.Context()).Debug("jwt rejected", "remote", r.RemoteAddr, "err", err)
				fail(w, http.StatusUnauthorized, "Invalid or expired session. Please login again.", nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits only operators holding one of the roles.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims != nil {
				for _, role := range roles {
					if claims.Role == role {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			fail(w, http.StatusForbidden, "Access denied. Insufficient permissions.", nil)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *statusRecorder) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack is needed by the WebSocket upgrade.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// RequestLogger tags each request with an id, stores a request scoped
// logger in the context and logs the outcome.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()[:8]
			w.Header().Set("X-Request-ID", requestID)

			reqLogger := logger.With("request_id", requestID)
			ctx := logging.NewContext(r.Context(), reqLogger)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			level := slog.LevelDebug
			if rec.status >= 500 {
				level = slog.LevelError
			} else if rec.status >= 400 {
				level = slog.LevelWarn
			}
			reqLogger.Log(ctx, level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.size,
				"duration", time.Since(start),
			)
		})
	}
}
