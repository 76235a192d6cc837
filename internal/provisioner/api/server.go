// Package api exposes the provisioner over HTTP: configuration creation,
// on-demand reconciliation, and health.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/provisioner/orchestrator"
	"github.com/AvinFlower/shadow-link/internal/provisioner/reconciler"
	applogger "github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// Provisioner defines the provisioning operations the API depends on.
type Provisioner interface {
	Provision(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// Syncer defines the reconciliation operations the API depends on.
type Syncer interface {
	SyncUser(ctx context.Context, userID int64) (*reconciler.UserSummary, error)
	SyncAll(ctx context.Context) (*reconciler.Summary, error)
}

// ConfigurationReader lists stored configurations.
type ConfigurationReader interface {
	ListConfigurationsByUser(ctx context.Context, userID int64) ([]db.UserConfiguration, error)
}

// Server represents the HTTP API server with lifecycle management.
type Server struct {
	server      *http.Server
	provisioner Provisioner
	syncer      Syncer
	configs     ConfigurationReader
	logger      *applogger.Logger
	version     string
}

// ServerConfig contains configuration for the API server.
type ServerConfig struct {
	Address string
	Version string
}

// NewServer creates a new API server instance.
func NewServer(config ServerConfig, provisioner Provisioner, syncer Syncer, configs ConfigurationReader, logger *applogger.Logger) *Server {
	return &Server{
		provisioner: provisioner,
		syncer:      syncer,
		configs:     configs,
		logger:      logger.WithComponent("api"),
		version:     config.Version,
		server: &http.Server{
			Addr:         config.Address,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server and begins serving requests.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.server.Handler = s.registerRoutes(mux)

	s.logger.InfoContext(ctx, "starting API server", "address", s.server.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("api server failed to start: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.InfoContext(ctx, "API server started", "address", s.server.Addr)
		return nil
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}

	s.logger.InfoContext(ctx, "API server shut down")
	return nil
}

// registerRoutes registers API routes with middleware.
func (s *Server) registerRoutes(mux *http.ServeMux) http.Handler {
	mux.HandleFunc("GET /healthz", s.healthHandler())

	mux.HandleFunc("POST /api/v1/configurations", s.createConfigurationHandler())
	mux.HandleFunc("GET /api/v1/users/{userID}/configurations", s.listConfigurationsHandler())
	mux.HandleFunc("POST /api/v1/configurations/sync", s.syncHandler())

	return Chain(
		RequestID(s.logger),
		Recovery(),
		Logging(),
	)(mux)
}
