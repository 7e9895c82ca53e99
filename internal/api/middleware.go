package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// requestLogger logs one line per request with its status and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// rateLimit is a huma middleware that limits each user, or each client IP
// for anonymous calls, to the configured token bucket.
func (s *Server) rateLimit(ctx huma.Context, next func(huma.Context)) {
	if s.limiter == nil {
		next(ctx)
		return
	}

	key, ok := UserFromContext(ctx.Context())
	if !ok {
		key = "ip:" + clientIP(ctx.RemoteAddr())
	}

	allowed, wait := s.limiter.Reserve(key)
	if allowed {
		next(ctx)
		return
	}

	s.logger.Warn("rate limit exceeded",
		slog.String("key", key),
		slog.String("path", ctx.URL().Path))
	if wait > 0 {
		ctx.SetHeader("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many requests", errors.ErrRateLimited)
}

// clientIP strips the port from a RemoteAddr. RealIP runs first, so proxy
// headers are already applied.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
