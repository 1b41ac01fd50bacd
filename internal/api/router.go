package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailbridge/internal/auth"
)

// Deps holds what the router needs. Archive, Publisher, Provider and
// IntakeAuth are optional.
type Deps struct {
	DB          Pinger
	Emails      EmailStore
	Events      EventHandler
	Archive     Archiver
	Publisher   Publisher
	Provider    HealthChecker
	IntakeAuth  auth.Verifier
	WebhookPath string
	Webhook     WebhookConfig
	Log         zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(d.Log))
	r.Use(RecoverMiddleware(d.Log))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(d.DB, d.Provider))
	r.Handle("/metrics", promhttp.Handler())

	// Called by the provider; authenticated by body signature.
	r.Post(d.WebhookPath, WebhookHandler(d.Webhook, d.Archive, d.Events))

	r.Route("/api/v1", func(r chi.Router) {
		if d.IntakeAuth != nil {
			r.Use(auth.BearerAuth(d.IntakeAuth))
		}
		r.Post("/emails", CreateEmailHandler(d.Emails, d.Publisher))
		r.Get("/emails/{id}", GetEmailHandler(d.Emails))
	})

	return r
}
