package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medspa-booking-wizard/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medspa-booking-wizard/internal/http/middleware"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Wizard             *handlers.WizardHandler
	Cookies            *httpmiddleware.SessionCookies
	RateLimiter        *httpmiddleware.RateLimiter
	RequestObserver    httpmiddleware.RequestObserver
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.RequestObserver))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Wizard == nil {
		return r
	}
	wiz := cfg.Wizard
	r.Route("/wizard", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(httpmiddleware.RateLimit(cfg.RateLimiter, cfg.Logger))
		}
		r.Post("/sessions", wiz.CreateSession)

		r.Group(func(r chi.Router) {
			r.Use(httpmiddleware.RequireSession(cfg.Cookies))
			r.Delete("/sessions", wiz.EndSession)
			r.Get("/state", wiz.State)
			r.Post("/back", wiz.Back)
			r.Post("/personal-info", wiz.PersonalInfo)
			r.Post("/otp/send", wiz.SendOTP)
			r.Post("/otp/verify", wiz.VerifyOTP)
			r.Get("/locations", wiz.Locations)
			r.Get("/reasons", wiz.Reasons)
			r.Get("/providers", wiz.Providers)
			r.Post("/location", wiz.SelectLocation)
			r.Post("/appointment-type", wiz.AppointmentType)
			r.Get("/calendar", wiz.Calendar)
			r.Post("/calendar/click", wiz.ClickDate)
			r.Post("/calendar/prev", wiz.PrevMonth)
			r.Post("/calendar/next", wiz.NextMonth)
			r.Post("/date-range", wiz.ConfirmDateRange)
			r.Get("/slots", wiz.Slots)
			r.Post("/slot", wiz.SelectSlot)
			r.Post("/finish", wiz.Finish)
			r.Get("/appointments/{patientID}", wiz.Appointment)
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
