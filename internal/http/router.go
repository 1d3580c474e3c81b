package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
)

type RouterConfig struct {
	Logger      observability.Logger
	Limiter     Limiter
	RateLimit   int
	Idempotency Replayer
	CORSOrigin  string
	AdminSecret string
}

func SetupRouter(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(cfg.Logger))
	r.Use(TracingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	// signed by the processor; no client idempotency keys
	r.Post("/webhook", h.Webhook)

	r.Group(func(r chi.Router) {
		if cfg.Idempotency != nil {
			r.Use(IdempotencyMiddleware(cfg.Idempotency, cfg.Logger))
		}
		checkout := r
		if cfg.Limiter != nil {
			checkout = r.With(RateLimitMiddleware(cfg.Limiter, cfg.RateLimit, cfg.Logger))
		}
		checkout.Post("/checkout/create-session-token", h.CreateCheckoutSession)
		r.Post("/booking/create", h.CreateBooking)
		r.Post("/refund/{bookingId}/{paymentId}", h.Refund)
	})

	r.Get("/booking/customer/{customerId}", h.CustomerBookings)
	r.Get("/booking/cancel/{bookingId}", h.CancelBooking)
	r.Get("/booking/{bookingId}", h.GetBooking)
	r.With(AdminOnly(cfg.AdminSecret, cfg.Logger)).Delete("/booking/{bookingId}", h.RemoveBooking)

	return r
}
