// Package httpapi assembles the HTTP router: the provider webhook endpoint
// at the root and the client-facing API under /api/v1.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/http/handlers"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/middleware"
)

// NewRouter wires all routes and middleware around the handler container.
func NewRouter(app *handlers.App, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS([]string{"*"}),
	)

	r.Get("/healthz", app.Health)

	// Providers deliver callbacks here; CORS preflight is answered by the
	// middleware above.
	r.Post("/webhook-receiver", app.WebhookReceive)

	r.Route("/api/v1", func(r chi.Router) {
		rateLimit := 30
		if app.Config != nil && app.Config.RateLimitPerMin > 0 {
			rateLimit = app.Config.RateLimitPerMin
		}
		r.With(middleware.RateLimit(rateLimit, time.Minute)).Post("/generate", app.Generate)

		r.Get("/jobs", app.ListJobs)
		r.Get("/jobs/{task_id}", app.GetJob)
		r.Post("/jobs/{task_id}/ack", app.AckJob)
		r.Post("/notifications/{notification_id}/cancel", app.CancelNotification)
	})

	return r
}
