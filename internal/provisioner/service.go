// Package provisioner assembles the service: configuration provisioning over
// SSH-managed panels, periodic reconciliation, and the HTTP API.
package provisioner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AvinFlower/shadow-link/internal/provisioner/api"
	"github.com/AvinFlower/shadow-link/internal/provisioner/capacity"
	"github.com/AvinFlower/shadow-link/internal/provisioner/config"
	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/provisioner/events"
	"github.com/AvinFlower/shadow-link/internal/provisioner/fleet"
	"github.com/AvinFlower/shadow-link/internal/provisioner/orchestrator"
	"github.com/AvinFlower/shadow-link/internal/provisioner/panel"
	"github.com/AvinFlower/shadow-link/internal/provisioner/reconciler"
	"github.com/AvinFlower/shadow-link/internal/provisioner/scheduler"
	"github.com/AvinFlower/shadow-link/internal/provisioner/selector"
	"github.com/AvinFlower/shadow-link/internal/provisioner/vless"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// Version is stamped at build time.
var Version = "dev"

// SchedulerInterface defines the interface for scheduler operations
type SchedulerInterface interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// APIServerInterface defines the interface for API server operations
type APIServerInterface interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Service coordinates all provisioner components and manages their lifecycle
type Service struct {
	config    *config.Config
	logger    *logger.Logger
	scheduler SchedulerInterface
	apiServer APIServerInterface

	store    db.Store
	cache    capacity.Cache
	bus      events.Bus
	importer *fleet.Importer

	ctx    context.Context
	cancel context.CancelFunc

	signalChan            chan os.Signal
	shutdownWg            sync.WaitGroup
	isRunning             bool
	mu                    sync.RWMutex
	disableSignalHandling bool // For testing
}

// NewService creates a new Service instance and initializes all components in
// proper dependency order.
func NewService(cfg *config.Config, log *logger.Logger) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())

	service := &Service{
		config:     cfg,
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
		signalChan: make(chan os.Signal, 1),
	}

	if err := service.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize service components: %w", err)
	}

	return service, nil
}

// initializeComponents creates and wires all service components in proper
// dependency order.
func (s *Service) initializeComponents() error {
	s.logger.Info("initializing service components")

	// 1. Database store (foundational dependency)
	store, err := db.NewStore(&db.Config{
		Path:            s.config.DB.Path,
		MaxOpenConns:    s.config.DB.MaxOpenConns,
		MaxIdleConns:    s.config.DB.MaxIdleConns,
		ConnMaxLifetime: s.config.DB.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database store: %w", err)
	}
	s.store = store
	s.logger.Debug("database store initialized")

	// 2. Capacity cache: shared Redis when configured, otherwise in-process.
	if s.config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     s.config.Redis.Addr,
			Password: s.config.Redis.Password,
			DB:       s.config.Redis.DB,
		})
		redisCache := capacity.NewRedisCache(client)

		pingCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		if err := redisCache.Ping(pingCtx); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", s.config.Redis.Addr, err)
		}

		s.cache = redisCache
		s.logger.Debug("redis capacity cache initialized", "addr", s.config.Redis.Addr)
	} else {
		s.cache = capacity.NewMemoryCache()
		s.logger.Debug("in-process capacity cache initialized")
	}

	// 3. Event bus plus the degraded-provision log subscriber.
	s.bus = events.NewBus(s.logger)
	if _, err := s.bus.Subscribe(events.TypeProvisionDegraded, func(ctx context.Context, e events.Event) error {
		s.logger.WarnContext(ctx, "configuration provisioned with degraded remote state",
			"user_id", e.Metadata()["user_id"],
			"server_id", e.Metadata()["server_id"],
			"warnings", e.Metadata()["warnings"])
		return nil
	}); err != nil {
		return fmt.Errorf("failed to subscribe degraded-provision handler: %w", err)
	}
	s.logger.Debug("event bus initialized")

	// 4. Remote panel access and the link codec.
	panelFactory := panel.NewSSHFactory(s.config.SSH.DialTimeout, s.config.SSH.CommandTimeout, s.logger)
	codec := vless.Codec{
		PublicKey:  s.config.Panel.PublicKey,
		ServerName: s.config.Panel.ServerName,
	}

	// 5. Fleet importer (depends on store).
	s.importer = fleet.NewImporter(s.store, s.logger)

	// 6. Placement and provisioning (depend on store, cache, panels, bus).
	picker := selector.New(s.store, s.cache, s.logger)

	terms, err := s.config.TermPrices()
	if err != nil {
		return fmt.Errorf("invalid terms configuration: %w", err)
	}
	orch := orchestrator.New(s.store, picker, panelFactory, codec, s.cache, s.bus, s.config.Panel.Flow, terms, s.logger)

	// 7. Reconciler (depends on store, panels, cache, bus).
	rec := reconciler.New(s.store, panelFactory, s.cache, s.bus, s.config.SSH.CommandTimeout, s.logger)

	// 8. Scheduler manager (depends on reconciler, store, cache).
	s.scheduler = scheduler.NewManager(
		s.config.Scheduler.SyncInterval,
		s.config.Scheduler.RefreshInterval,
		s.config.Cache.TTL,
		rec,
		s.store,
		s.cache,
		s.logger,
	)

	// 9. API server (depends on orchestrator, reconciler, store).
	s.apiServer = api.NewServer(
		api.ServerConfig{
			Address: s.config.API.ListenAddr,
			Version: Version,
		},
		orch,
		rec,
		s.store,
		s.logger,
	)

	s.logger.Info("all service components initialized")
	return nil
}

// Start starts all service components in proper dependency order.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("service is already running")
	}

	s.logger.Info("starting provisioner service")

	if !s.disableSignalHandling {
		s.setupSignalHandling()
	}

	// 1. Bring the server inventory up to date before anything reads it.
	if _, err := s.importer.ImportFromEnv(s.ctx); err != nil {
		return fmt.Errorf("failed to import server fleet: %w", err)
	}

	// 2. Start the periodic jobs.
	if err := s.scheduler.Start(s.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// 3. Start the API server last so requests only land on a ready service.
	if err := s.apiServer.Start(s.ctx); err != nil {
		if stopErr := s.scheduler.Stop(s.ctx); stopErr != nil {
			s.logger.Error("failed to stop scheduler during cleanup", "error", stopErr)
		}
		return fmt.Errorf("failed to start API server: %w", err)
	}

	s.isRunning = true
	s.logger.Info("provisioner service started")
	return nil
}

// setupSignalHandling configures signal handling for graceful shutdown.
func (s *Service) setupSignalHandling() {
	signal.Notify(s.signalChan, syscall.SIGINT, syscall.SIGTERM)

	s.shutdownWg.Add(1)
	go s.handleSignals()
}

// handleSignals processes shutdown signals and initiates graceful shutdown.
func (s *Service) handleSignals() {
	defer s.shutdownWg.Done()

	select {
	case sig := <-s.signalChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()

		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error("error during graceful shutdown", "error", err)
		}

	case <-s.ctx.Done():
		s.logger.Debug("signal handler exiting due to service context cancellation")
	}
}

func (s *Service) shutdownTimeout() time.Duration {
	if s.config != nil && s.config.Service.ShutdownTimeout > 0 {
		return s.config.Service.ShutdownTimeout
	}
	return 30 * time.Second
}

// WaitForShutdown blocks until the service receives a shutdown signal.
func (s *Service) WaitForShutdown() {
	s.logger.Info("service running, waiting for shutdown signal")
	s.shutdownWg.Wait()
	s.logger.Info("service shutdown complete")
}

// Stop gracefully shuts down all service components in reverse dependency
// order.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		s.logger.Warn("service is not running")
		return nil
	}

	s.logger.Info("stopping provisioner service")

	shutdownCtx := ctx
	if ctx == nil || ctx == context.Background() {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
	}

	var lastErr error

	if !s.disableSignalHandling {
		signal.Stop(s.signalChan)
		close(s.signalChan)
	}

	// 1. Stop the API server first so no new work arrives.
	if s.apiServer != nil {
		if err := s.apiServer.Stop(shutdownCtx); err != nil {
			s.logger.Error("failed to stop API server", "error", err)
			lastErr = err
		}
	}

	// 2. Stop the periodic jobs.
	if s.scheduler != nil {
		if err := s.scheduler.Stop(shutdownCtx); err != nil {
			s.logger.Error("failed to stop scheduler", "error", err)
			lastErr = err
		}
	}

	// 3. Close the event bus.
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Error("failed to close event bus", "error", err)
			lastErr = err
		}
	}

	// 4. Close the database store.
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close database store", "error", err)
			lastErr = err
		}
	}

	// 5. Cancel the service context and wait for remaining goroutines.
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("timeout waiting for background goroutines to finish")
		if lastErr == nil {
			lastErr = shutdownCtx.Err()
		}
	}

	s.isRunning = false

	if lastErr != nil {
		return fmt.Errorf("service shutdown completed with errors: %w", lastErr)
	}

	s.logger.Info("provisioner service stopped")
	return nil
}

// Health checks the health of all service components.
func (s *Service) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return fmt.Errorf("service is not running")
	}

	select {
	case <-s.ctx.Done():
		return fmt.Errorf("service context cancelled")
	default:
		if s.store != nil {
			if err := s.store.Ping(context.Background()); err != nil {
				return fmt.Errorf("database health check failed: %w", err)
			}
		}
		return nil
	}
}

// IsRunning returns whether the service is currently running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Context returns the service context for components that need it.
func (s *Service) Context() context.Context {
	return s.ctx
}
