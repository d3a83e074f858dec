// Package server exposes the parser over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"royal/config"
	"royal/logger"
	"royal/parser"
	"royal/store"
	"royal/types"
)

// Options holds the dependencies of a Server
type Options struct {
	Config  *config.Config
	Logger  *logger.ObservabilityLogger
	Store   *store.SQLiteStore // optional; nil disables persistence and lookups
	Version string
}

// Server serves parse requests
type Server struct {
	cfg       *config.Config
	log       *logger.ObservabilityLogger
	store     *store.SQLiteStore
	validator types.RequestValidator
	version   string
	router    *chi.Mux
}

// New creates a Server and its routes
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		store:     opts.Store,
		validator: types.NewStandardRequestValidator(int(cfg.Server.MaxBodyBytes)),
		version:   opts.Version,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	// Metrics first so every request is counted
	r.Use(metricsMiddleware)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(maxBodySize(s.cfg.Server.MaxBodyBytes))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/parse", s.handleParse)
		r.Post("/parse/batch", s.handleBatch)
		r.Get("/messages/{id}", s.handleLookup)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// parserFor builds a parser for one request, applying per-request overrides
func (s *Server) parserFor(r *http.Request, req *types.ParseRequest) *parser.Parser {
	requireStart, requireSpeaker := s.cfg.GetParserConfiguration()
	if req != nil {
		if req.RequireStart != nil {
			requireStart = *req.RequireStart
		}
		if req.RequireSpeakerToken != nil {
			requireSpeaker = *req.RequireSpeakerToken
		}
	}
	return parser.New(parser.Options{
		RequireStart:        requireStart,
		RequireSpeakerToken: requireSpeaker,
		Logger: s.log.Component(logger.ComponentParser).
			WithField("request_id", chimw.GetReqID(r.Context())),
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(logger.ComponentServer, logger.CategoryLifecycle, "Parse service started", map[string]interface{}{
			"address":  fmt.Sprintf("http://localhost:%s", s.cfg.Server.Port),
			"endpoint": fmt.Sprintf("http://localhost:%s/v1/parse", s.cfg.Server.Port),
			"version":  s.version,
			"store":    s.store != nil,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.log.Error(logger.ComponentServer, logger.CategoryError, "Server failed to start", map[string]interface{}{"error": err.Error()})
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info(logger.ComponentServer, logger.CategoryLifecycle, "Parse service shutting down", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
