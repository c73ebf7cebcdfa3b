package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/jiwon-platform/chatmemory/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	SearchMessages http.HandlerFunc
	RecordMessage  http.HandlerFunc
	SessionHistory http.HandlerFunc
	RecentMessages http.HandlerFunc
	ClearSession   http.HandlerFunc
}

// HealthChecks are dependency probes for the readiness endpoint. A nil
// check reports the dependency as not configured.
type HealthChecks struct {
	Database func(ctx context.Context) error
	Redis    func(ctx context.Context) error
	NATS     func() bool
	// VectorBackend names the active embedding representation.
	VectorBackend string
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
}

func NewRouter(checks HealthChecks, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":         "healthy",
			"database":       "healthy",
			"redis":          "healthy",
			"nats":           "healthy",
			"vector_backend": checks.VectorBackend,
		}

		status := http.StatusOK
		degrade := func(key string) {
			health[key] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if checks.Database == nil || checks.Database(r.Context()) != nil {
			degrade("database")
		}

		// Redis only backs the recent-history window; losing it degrades
		// the report but not the status code.
		if checks.Redis == nil {
			health["redis"] = "not configured"
		} else if err := checks.Redis(r.Context()); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
		}

		if checks.NATS == nil {
			health["nats"] = "not configured"
		} else if !checks.NATS() {
			degrade("nats")
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/conversations", func(r chi.Router) {
		r.Post("/search", h.SearchMessages)
		r.Post("/messages", h.RecordMessage)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/messages", h.SessionHistory)
			r.Get("/recent", h.RecentMessages)
			r.Delete("/", h.ClearSession)
		})
	})

	return r
}
