package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"veo3.app/license/internal/email"
	"veo3.app/license/license"
)

// MaxBodyBytes caps every request body, webhook payloads included.
const MaxBodyBytes = int64(65536)

type Options struct {
	AllowedOrigins []string
	// StripeWebhookSecret enables POST /api/webhooks/stripe when set.
	StripeWebhookSecret string
	// Mailer delivers keys issued by the Stripe webhook. May be nil.
	Mailer email.Mailer
	// PanicReporter runs inside the recoverer and must re-panic.
	PanicReporter func(http.Handler) http.Handler
}

type Server struct {
	Router   chi.Router
	Registry *license.Registry

	webhookSecret string
	mailer        email.Mailer
}

func NewHttpServer(registry *license.Registry, opts Options) *Server {
	s := &Server{
		Router:        chi.NewRouter(),
		Registry:      registry,
		webhookSecret: opts.StripeWebhookSecret,
		mailer:        opts.Mailer,
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.Router.Use(middleware.Recoverer)
	if opts.PanicReporter != nil {
		s.Router.Use(opts.PanicReporter)
	}
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	s.Router.Use(middleware.RequestSize(MaxBodyBytes))

	s.Router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.Health)
		r.Post("/verify-license", s.VerifyLicense)
		r.Post("/verify-license/activate", s.ActivateLicense)
		r.Post("/admin/create-license", s.CreateLicense)
		if s.webhookSecret != "" {
			r.Post("/webhooks/stripe", s.Stripe)
		}
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
