// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     server
// Description: HTTP control API and event stream
// Created:     2026-09-30
// License:     MIT
// ============================================================================

// Package server exposes the orchestrator over HTTP: goal submission and
// cancellation, goal, lock and provider inspection, provider announcements,
// goal history and a websocket stream of goal and provider events.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/msto63/wiener/internal/orchestrator"
	"github.com/msto63/wiener/internal/store"
	"github.com/msto63/wiener/pkg/core/discovery"
	"github.com/msto63/wiener/pkg/core/health"
	"github.com/msto63/wiener/pkg/core/logging"
)

// History lists past goals
type History interface {
	Recent(ctx context.Context, limit int, status string) ([]store.Record, error)
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8600,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Version:      "dev",
	}
}

// Server is the control API server
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	orch       *orchestrator.Orchestrator
	registry   *discovery.Registry
	history    History
	health     *health.Registry
	logger     *logging.Logger
	config     Config
}

// New creates the server. registry and history may be nil; the matching
// routes then answer 503.
func New(cfg Config, orch *orchestrator.Orchestrator, registry *discovery.Registry, history History) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		orch:     orch,
		registry: registry,
		history:  history,
		logger:   logging.New("server"),
		config:   cfg,
	}

	s.health = health.NewRegistry("wiener", cfg.Version)
	s.health.RegisterFunc("orchestrator", func(ctx context.Context) health.CheckResult {
		return health.CheckResult{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%d active interpreters", orch.Active()),
			Details: map[string]any{"slice": orch.Slice().String()},
		}
	})
	s.health.Register(health.ListCheck("providers", "operations without provider", orch.Table().Unresolved))

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.routes()

	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// requestLogger logs every request after it completed
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve serves on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Control API listening", "address", lis.Addr().String())
	if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StartAsync listens on the configured address and serves in the background
func (s *Server) StartAsync() error {
	lis, err := net.Listen("tcp", s.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address(), err)
	}
	go func() {
		if err := s.Serve(lis); err != nil {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping control API")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address
func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// HealthRegistry returns the health check registry
func (s *Server) HealthRegistry() *health.Registry {
	return s.health
}
