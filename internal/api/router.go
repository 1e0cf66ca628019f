package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// RouterOptions tunes the middleware chain.
type RouterOptions struct {
	// RequestsPerMinute is the per-IP inbound limit. Zero means 60.
	RequestsPerMinute int
	// TrustProxyHeaders takes the client address from X-Real-IP or
	// X-Forwarded-For. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// NewRouter builds and returns the Chi router with all routes configured.
// Rate limiting is applied globally per client IP.
func NewRouter(handlers *Handlers, history pinger, opts RouterOptions, log *slog.Logger) *chi.Mux {
	requestsPerMinute := opts.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(log))
	r.Use(httprate.LimitByIP(requestsPerMinute, time.Minute))

	r.Get("/health", HealthHandlerFunc(history, log))

	r.Post("/weather", handlers.PostWeather)
	r.Get("/weather/coordinates", handlers.WeatherByCoordinates)
	r.Get("/validate-api", handlers.ValidateAPI)
	r.Get("/history", handlers.History)
	r.Get("/get_location", handlers.GetLocation)

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
