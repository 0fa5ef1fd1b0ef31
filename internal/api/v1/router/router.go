package router

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"studyon/internal/api/v1/handler"
	"studyon/internal/config"
	"studyon/internal/middleware"
	"studyon/internal/service"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	DB       *sql.DB
	Registry *prometheus.Registry

	Sessions middleware.SessionStore
	Manager  middleware.SessionValidator

	Users        service.UserService
	Catalog      service.CatalogService
	Lessons      service.LessonService
	Payments     service.PaymentService
	Transactions service.TransactionService
}

func New(cfg *config.Config, logger zerolog.Logger, deps Deps) http.Handler {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initialized")

	// 1. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 2. Initialize handlers
	userHandler := handler.NewUserHandler(deps.Users, deps.Transactions, deps.Sessions, validate, logger)
	courseHandler := handler.NewCourseHandler(deps.Catalog, deps.Payments, validate, logger)
	lessonHandler := handler.NewLessonHandler(deps.Lessons, logger)

	// 3. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(deps.Sessions, deps.Manager, logger)
	adminMiddleware := middleware.RequireRole(cfg.AdminRole)

	// 4. Create ServeMux router
	mux := http.NewServeMux()

	// Create a subrouter for API v1
	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	courseHandler.RegisterRoutes(apiV1Mux, authMiddleware, adminMiddleware)
	lessonHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	mux.HandleFunc("GET /healthz", healthz(deps.DB))

	// Redirect /api/* to /v1/* for backward compatibility
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/")
		http.Redirect(w, r, "/v1/"+rest, http.StatusMovedPermanently)
	})

	// 5. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux))
}

// healthz reports whether the catalog database answers.
func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}
