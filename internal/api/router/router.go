package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/odontomarket/dental-marketplace-platform/internal/appointments"
	"github.com/odontomarket/dental-marketplace-platform/internal/clinicorp"
	"github.com/odontomarket/dental-marketplace-platform/internal/clinics"
	"github.com/odontomarket/dental-marketplace-platform/internal/credit"
	httpmiddleware "github.com/odontomarket/dental-marketplace-platform/internal/http/middleware"
	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ClinicorpHandler    *clinicorp.Handler
	ClinicsHandler      *clinics.Handler
	AppointmentsHandler *appointments.Handler
	CreditHandler       *credit.Handler
	Verifier            *httpmiddleware.Verifier
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	RateLimitPerSecond  float64
	RateLimitBurst      int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ClinicorpHandler != nil {
			// Preflight never carries credentials; answered before auth.
			public.Options("/api/integrations/clinicorp", cfg.ClinicorpHandler.Handle)
		}
		if cfg.ClinicsHandler != nil {
			public.Get("/api/clinics", cfg.ClinicsHandler.List)
			public.Get("/api/clinics/{clinicID}", cfg.ClinicsHandler.Get)
		}
	})

	// Authenticated marketplace routes.
	if cfg.Verifier != nil {
		r.Group(func(private chi.Router) {
			private.Use(cfg.Verifier.RequireUser)
			if cfg.ClinicorpHandler != nil {
				private.Post("/api/integrations/clinicorp", cfg.ClinicorpHandler.Handle)
			}
			if cfg.ClinicsHandler != nil {
				private.Post("/api/clinics", cfg.ClinicsHandler.Create)
				private.Put("/api/clinics/{clinicID}", cfg.ClinicsHandler.Update)
			}
			if cfg.AppointmentsHandler != nil {
				private.Route("/api/appointments", func(ar chi.Router) {
					ar.Get("/", cfg.AppointmentsHandler.List)
					ar.Post("/", cfg.AppointmentsHandler.Book)
					ar.Post("/{appointmentID}/cancel", cfg.AppointmentsHandler.Cancel)
				})
			}
			if cfg.CreditHandler != nil {
				private.Route("/api/credit/requests", func(cr chi.Router) {
					cr.Get("/", cfg.CreditHandler.List)
					cr.Post("/", cfg.CreditHandler.Create)
					cr.Get("/{requestID}", cfg.CreditHandler.Get)
					cr.Post("/{requestID}/decision", cfg.CreditHandler.Decide)
				})
			}
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
