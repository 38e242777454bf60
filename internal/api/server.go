// Package api provides the HTTP API of the Lutrin daemon: the library,
// capture pipeline, playback sessions and the SSE event stream.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lutrinapp/lutrin/internal/sse"
	"github.com/lutrinapp/lutrin/internal/validation"
)

// Options configures the server.
type Options struct {
	Version     string
	CORSOrigins []string
	// OCREngine and TTSEngine are passed to the gateway on every run and
	// session unless a request overrides them.
	OCREngine string
	TTSEngine string
	// UploadLimiter throttles uploads per client IP. Nil disables it.
	UploadLimiter *RateLimiter
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services  *Services
	opts      Options
	router    *chi.Mux
	api       huma.API
	validator *validation.Validator
	logger    *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, opts Options, logger *slog.Logger) *Server {
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	s := &Server{
		services:  services,
		opts:      opts,
		router:    chi.NewRouter(),
		validator: validation.New(),
		logger:    logger,
	}

	s.setupMiddleware()

	RegisterErrorHandler()
	s.api = humachi.New(s.router, huma.DefaultConfig("Lutrin API", opts.Version))

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for the OpenAPI document and tests.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerDocumentRoutes()
	s.registerSearchRoutes()
	s.registerPipelineRoutes()
	s.registerSessionRoutes()

	// Multipart uploads and the event stream are plain chi handlers;
	// huma does not model either well.
	s.router.Group(func(r chi.Router) {
		if s.opts.UploadLimiter != nil {
			r.Use(RateLimitMiddleware(s.opts.UploadLimiter, s.logger))
		}
		r.Post("/api/v1/owners/{ownerId}/documents/epub", s.handleIngestEpub)
		r.Post("/api/v1/pipeline/runs", s.handleRunCapture)
	})

	if s.services.Events != nil {
		events := sse.NewHandler(s.services.Events, ownerFromQuery, s.logger)
		s.router.Get("/api/v1/events", events.ServeHTTP)
	}
}

// ownerFromQuery resolves the owner of an event stream from ?owner=.
func ownerFromQuery(r *http.Request) (string, error) {
	return validation.OwnerID(r.URL.Query().Get("owner"))
}

// requestLogger logs one line per request with slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
