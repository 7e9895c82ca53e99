// Package api exposes the sync engine over HTTP with huma on a chi router.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fuelupapp/fuelup-server/internal/ratelimit"
	"github.com/fuelupapp/fuelup-server/internal/service"
	"github.com/fuelupapp/fuelup-server/internal/sse"
)

// Services are the collaborators behind the HTTP handlers.
type Services struct {
	Sync   *service.SyncService
	Tokens TokenVerifier
	Events *sse.Manager
	Store  Pinger
	// Photos is nil when object storage is not configured.
	Photos PhotoStore
}

// Options tune the HTTP surface.
type Options struct {
	Version        string
	AllowedOrigins []string
	// Limiter throttles sync and photo routes per user. Nil disables it.
	Limiter *ratelimit.KeyedRateLimiter
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services *Services
	router   *chi.Mux
	api      huma.API
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(services *Services, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))
	router.Use(authMiddleware(services.Tokens))

	humaConfig := huma.DefaultConfig("FuelUp Sync API", opts.Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}

	RegisterErrorHandler()

	s := &Server{
		services: services,
		router:   router,
		api:      humachi.New(router, humaConfig),
		limiter:  opts.Limiter,
		logger:   logger,
	}

	s.registerHealthRoutes()
	s.registerSyncRoutes()
	s.registerPhotoRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for OpenAPI export and tests.
func (s *Server) API() huma.API {
	return s.api
}

// bearer marks an operation as requiring a token in the OpenAPI document.
var bearer = []map[string][]string{{"bearer": {}}}
