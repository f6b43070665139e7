package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: s.cfg.CORS.AllowedMethods,
		AllowedHeaders: s.cfg.CORS.AllowedHeaders,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         s.cfg.CORS.MaxAge,
	}))
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	// The tracker firmware announces itself here after joining the network.
	r.Post("/registerIP", s.handleRegisterIP)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit.Enabled && s.cfg.RateLimit.RequestsPerMinute > 0 {
			r.Use(httprate.Limit(
				s.cfg.RateLimit.RequestsPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
				}),
			))
		}

		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		// Cached telemetry
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/angles", s.handleAngles)
		r.Get("/motor", s.handleMotor)
		r.Get("/pid", s.handlePID)
		r.Get("/system-status", s.handleSystemStatus)
		r.Get("/control-signals", s.handleControlSignals)
		r.Get("/solar-irradiation", s.handleIrradiance)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/data-history", s.handleDataHistory)
		r.Get("/demo-data", s.handleDemoData)

		// Commands
		r.Patch("/mode", s.handleSetMode)
		r.Patch("/clock", s.handleAdjustClock)
		r.Patch("/manual-setpoint", s.handleManualSetpoint)
		r.Patch("/pid", s.handleTunePID)
		r.Delete("/device/tracking", s.handleClearDeviceTracking)

		r.Get("/tracking-data", s.handleTrackingLog)
		r.Delete("/tracking-data", s.handleClearHistory)

		r.Get("/events", s.handleListEvents)
		r.Post("/register-ip", s.handleRegisterIP)
	})

	return r
}
