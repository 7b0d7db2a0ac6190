/**
 * @description
 * This file contains custom middleware for the HTTP router. The webhook
 * endpoint is rate-limited per provider and caller IP with a distributed
 * fixed window, bounding abuse of the unauthenticated intake surface.
 *
 * @dependencies
 * - context, net, net/http: Standard Go libraries.
 */

package api

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// RateLimiter is the distributed limiter contract.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// WebhookRateLimit limits webhook deliveries per provider and remote IP to
// the configured requests/minute. Limiter failures fail open: a degraded
// redis must not drop provider notifications.
func WebhookRateLimit(limiter RateLimiter, limitPerMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limitPerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			providerID := chi.URLParam(r, "provider")
			subject := remoteIP(r)
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), "webhook:"+providerID, subject, limitPerMinute, time.Minute)
			if err != nil {
				log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" provider=%s err=%v", providerID, err)
				next.ServeHTTP(w, r)
				return
			}
			if count > limitPerMinute {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"status": "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
