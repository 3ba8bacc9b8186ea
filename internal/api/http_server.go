package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gearrent/internal/config"
	"gearrent/internal/metrics"
	"gearrent/internal/service"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the rental desk as a JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	desk   *service.RentalDesk
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, desk *service.RentalDesk, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, desk: desk, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	mux.HandleFunc("GET /api/v1/equipment/{id}/availability", srv.handleAvailability)
	mux.HandleFunc("POST /api/v1/quotes", srv.handleQuote)

	mux.HandleFunc("POST /api/v1/reservations", srv.handleReserve)
	mux.HandleFunc("GET /api/v1/reservations/{id}", srv.handleGetReservation)
	mux.HandleFunc("POST /api/v1/reservations/{id}/convert", srv.handleConvert)
	mux.HandleFunc("POST /api/v1/reservations/{id}/cancel", srv.handleCancelReservation)

	mux.HandleFunc("POST /api/v1/rentals", srv.handleRent)
	mux.HandleFunc("GET /api/v1/rentals/overdue", srv.handleOverdue)
	mux.HandleFunc("GET /api/v1/rentals/{id}", srv.handleGetRental)
	mux.HandleFunc("POST /api/v1/rentals/{id}/cancel", srv.handleCancelRental)
	mux.HandleFunc("POST /api/v1/rentals/{id}/return", srv.handleReturn)

	mux.HandleFunc("GET /api/v1/pricing", srv.handlePricing)
	mux.HandleFunc("PUT /api/v1/pricing/membership-discounts/{tier}", srv.handleSetDiscount)

	handler := srv.loggingMiddleware(newRateLimiter(cfg.RateLimit).Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, fmt.Sprintf("%dxx", recorder.status/100))
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
