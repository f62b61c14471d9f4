// Package api provides the HTTP API server and handlers for the Library Ledger.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/libraryledger/ledger-server/internal/health"
	"github.com/libraryledger/ledger-server/internal/logger"
	"github.com/libraryledger/ledger-server/internal/ratelimit"
	"github.com/libraryledger/ledger-server/internal/service"
	"github.com/libraryledger/ledger-server/internal/sse"
)

// APIVersion is reported in the OpenAPI document.
const APIVersion = "1.0.0"

// Services groups the services the handlers call.
type Services struct {
	Auth      *service.AuthService
	Catalog   *service.CatalogService
	Directory *service.DirectoryService
	Ledger    *service.LedgerService
	Returns   *service.ReturnService
	Dashboard *service.DashboardService
}

// Options configures the HTTP surface.
type Options struct {
	Name               string
	CORSOrigins        []string
	LoginRatePerMinute int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services        *Services
	health          *health.Checker
	sseManager      *sse.Manager
	router          *chi.Mux
	api             huma.API
	logger          *slog.Logger
	authRateLimiter *ratelimit.KeyedRateLimiter
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(services *Services, checker *health.Checker, sseManager *sse.Manager, opts Options, log *slog.Logger) *Server {
	log = logger.OrDiscard(log)
	if opts.Name == "" {
		opts.Name = "Library Ledger"
	}
	if opts.LoginRatePerMinute <= 0 {
		opts.LoginRatePerMinute = 20
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(requestID)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(opts.CORSOrigins))
	router.Use(authMiddleware(services.Auth))

	humaConfig := huma.DefaultConfig(opts.Name+" API", APIVersion)
	humaConfig.Info.Description = "Library circulation: catalog, loans, fines and requests."
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	humaAPI := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		services:        services,
		health:          checker,
		sseManager:      sseManager,
		router:          router,
		api:             humaAPI,
		logger:          log,
		authRateLimiter: ratelimit.PerMinute(opts.LoginRatePerMinute),
	}

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerBookRoutes()
	s.registerUserRoutes()
	s.registerLoanRoutes()
	s.registerRequestRoutes()
	s.registerDashboardRoutes()

	router.Get("/api/v1/books/{id}/cover", s.handleGetCover)
	if sseManager != nil {
		router.Get("/api/v1/events", sse.NewHandler(sseManager, ssePrincipal, log).ServeHTTP)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, used by tests and the OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources owned by the server.
func (s *Server) Close() {
	s.authRateLimiter.Stop()
}
