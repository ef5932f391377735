package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"impfportal/pkg/requestcontext"
)

// Middleware applies the limiter per client IP. It must sit after the
// client-metadata middleware so the IP is already extracted; with no IP in
// the context the request passes unchecked rather than sharing one global
// bucket.
func Middleware(limiter *Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			if limiter == nil || ip == "" {
				next.ServeHTTP(w, r)
				return
			}

			result := limiter.Allow(ip)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			if !result.Allowed {
				retryAfter := int(result.ResetAt.Sub(requestcontext.Now(ctx)).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				logger.WarnContext(ctx, "rate limit exceeded",
					"client_ip", ip,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"too many requests"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
