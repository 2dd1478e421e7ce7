package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paperdesk/paperdesk/app"
	"github.com/paperdesk/paperdesk/handlers"
	"github.com/paperdesk/paperdesk/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(120 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// Archiving is optional; handlers accept a nil archiver
	var archive handlers.AttemptArchiver
	if deps.UsageArchive != nil {
		archive = deps.UsageArchive
	}

	generateHandler := handlers.NewGenerateHandler(deps.GenerationRouter, archive, deps.Logger)
	extractHandler := handlers.NewExtractHandler(deps.ExtractionRouter, archive, deps.Logger)
	usageHandler := handlers.NewUsageHandler(deps.Ledger, deps.EngineRegistry, "admin", deps.Logger)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", handlers.StatusHandler(deps))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Post("/generate", generateHandler.HandleGenerate)
			r.Post("/extract", extractHandler.HandleExtract)
			r.Get("/engines", generateHandler.HandleListEngines)
			r.Get("/usage", usageHandler.HandleGetUsage)
			r.Post("/usage/{engineID}/reset", usageHandler.HandleResetPeriod)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
