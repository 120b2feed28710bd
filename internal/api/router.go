package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
)

type RouterConfig struct {
	Service     *appointment.Service
	Logger      zerolog.Logger
	Checks      []Check
	CORSOrigins []string
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", HeaderRequestID, HeaderActorRole, HeaderActorID},
			ExposedHeaders: []string{HeaderRequestID},
			MaxAge:         300,
		}))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public: availability and gateway callbacks
	r.Get("/doctors/{doctorID}/slots", listSlotsHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm-payment", confirmPaymentHandler(cfg.Service))

	// Appointment endpoints
	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		r.Post("/appointments", bookHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/payment-session", paymentSessionHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))
		r.Post("/appointments/{id}/complete", completeHandler(cfg.Service))
		r.Post("/appointments/{id}/feedback", feedbackHandler(cfg.Service))
	})

	return r
}
