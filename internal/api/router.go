/**
 * @description
 * HTTP route definitions. Sets up the chi router, standard middleware, and
 * the webhook/health endpoints.
 */
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the service's HTTP surface.
func NewRouter(webhook *WebhookHandler, health *HealthHandler, limiter RateLimiter, rateLimitPerMinute int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/virtual-accounts", func(r chi.Router) {
		r.With(WebhookRateLimit(limiter, rateLimitPerMinute)).
			Post("/webhook/{provider}", webhook.HandleWebhook)
		r.Get("/health", health.HandleHealth)
	})

	return r
}
