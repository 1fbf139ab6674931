// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hurttlocker/intake/internal/chat"
)

const (
	DefaultKeepAlive     = 20 * time.Second
	DefaultRatePerMinute = 30
	shutdownTimeout      = 15 * time.Second
)

// Metrics is what the server reports. *metrics.Collector satisfies it.
type Metrics interface {
	RecordHTTP(method, route string, status int, d time.Duration)
	Handler() http.Handler
}

// Config wires a Server.
type Config struct {
	Chat           *chat.Service
	Metrics        Metrics // optional
	Logger         *zap.Logger
	RatePerMinute  int
	AllowedOrigins []string
	KeepAlive      time.Duration
}

// Server is the HTTP front of the chat service.
type Server struct {
	chat      *chat.Service
	metrics   Metrics
	log       *zap.Logger
	limiter   *ipLimiter
	origins   []string
	keepAlive time.Duration
	validate  *validator.Validate
}

func New(cfg Config) *Server {
	s := &Server{
		chat:      cfg.Chat,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		origins:   cfg.AllowedOrigins,
		keepAlive: cfg.KeepAlive,
		validate:  validator.New(),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.keepAlive <= 0 {
		s.keepAlive = DefaultKeepAlive
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = DefaultRatePerMinute
	}
	s.limiter = newIPLimiter(perMinute)
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.log, s.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(s.limiter.middleware)
		r.Post("/init", s.handleInit)
		r.Post("/message", s.handleMessage)
		r.Post("/stream", s.handleStream)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
