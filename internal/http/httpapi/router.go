package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"grantpay/internal/http/handlers"
	"grantpay/internal/infra"
	"grantpay/internal/middleware"
)

// Options carries the cross-cutting dependencies of the HTTP surface.
type Options struct {
	Config        *infra.Config
	Logger        infra.Logger
	CountryLookup middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.Config.CORSAllowedOrigins),
	)

	// Health stays outside auth so probes need no token.
	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.RateLimit(opts.Config.RateLimitPerMin, time.Minute),
			middleware.Audit(opts.CountryLookup),
			middleware.AuthJWT(opts.Config.JWTSecret),
		)

		r.Route("/v1/payouts", func(r chi.Router) {
			r.Post("/", app.PayoutsEnqueue)
			r.Post("/sweep", app.PayoutsSweep)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", app.PayoutsGet)
				r.Post("/retry", app.PayoutsRetry)
				r.Post("/cancel", app.PayoutsCancel)
			})
		})

		r.Route("/v1/events/{eventRef}/payouts", func(r chi.Router) {
			r.Get("/", app.EventPayoutsList)
			r.Get("/metrics", app.EventPayoutsMetrics)
			r.Post("/retry", app.EventPayoutsRetry)
		})
	})

	return r
}
