package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.lumeweb.com/blob-janitor/internal/sweep"
	"go.uber.org/zap"
)

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SweepController is the part of sweep.Manager the API drives.
type SweepController interface {
	Trigger() error
	Running() bool
	LastReport() *sweep.Report
}

type Server struct {
	server   *http.Server
	router   chi.Router
	logger   *zap.Logger
	database Pinger
	sweeps   SweepController
	config   *config.Config
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	database Pinger,
	sweeps SweepController,
) (*Server, error) {
	// Validate API configuration
	if err := validateAPIConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid API configuration: %w", err)
	}

	s := &Server{
		logger:   logger,
		database: database,
		sweeps:   sweeps,
		config:   cfg,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check doesn't require auth
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BasicAuth("blob-janitor", map[string]string{
			cfg.API.Username: cfg.API.Password,
		}))
		r.Get("/sweeps/last", s.handleLastSweep)
		r.Post("/sweeps", s.handleTriggerSweep)
	})

	s.router = r
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Validate API configuration before server creation
func validateAPIConfig(cfg *config.Config) error {
	if cfg.API.Username == "" {
		return fmt.Errorf("API username is required")
	}
	if cfg.API.Password == "" {
		return fmt.Errorf("API password is required")
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid API port number")
	}
	return nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("API request completed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Check database connection
	if err := s.database.Ping(ctx); err != nil {
		s.logger.Error("Health check failed - database connection error", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "unreachable",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"database":      "connected",
		"sweep_running": s.sweeps.Running(),
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) handleLastSweep(w http.ResponseWriter, r *http.Request) {
	report := s.sweeps.LastReport()
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no sweep has completed yet"})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Running bool          `json:"running"`
		Report  *sweep.Report `json:"report"`
	}{
		Running: s.sweeps.Running(),
		Report:  report,
	})
}

func (s *Server) handleTriggerSweep(w http.ResponseWriter, r *http.Request) {
	if err := s.sweeps.Trigger(); err != nil {
		if errors.Is(err, sweep.ErrSweepInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error("Failed to start sweep", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to start sweep"})
		return
	}

	s.logger.Info("Manual sweep started",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sweep started"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on API port: %w", err)
	}

	s.logger.Info("Starting API server",
		zap.Int("port", s.config.API.Port),
	)

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.server.Shutdown(ctx)
}
