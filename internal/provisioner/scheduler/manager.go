// Package scheduler runs the provisioner's periodic jobs: the reconciliation
// sweep and the capacity cache refresh.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/AvinFlower/shadow-link/internal/provisioner/capacity"
	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// Manager coordinates the periodic jobs under one lifecycle.
type Manager struct {
	syncScheduler    *SyncScheduler
	refreshScheduler *RefreshScheduler
	log              *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

func NewManager(
	syncInterval time.Duration,
	refreshInterval time.Duration,
	cacheTTL time.Duration,
	syncer Syncer,
	store db.Store,
	cache capacity.Cache,
	log *logger.Logger,
) *Manager {
	return &Manager{
		syncScheduler:    NewSyncScheduler(syncInterval, syncer, log),
		refreshScheduler: NewRefreshScheduler(refreshInterval, cacheTTL, store, cache, log),
		log:              log.WithComponent("scheduler"),
	}
}

// Start launches both job loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.log.Warn("scheduler manager already running")
		return nil
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.syncScheduler.Start(m.ctx)
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshScheduler.Start(m.ctx)
	}()

	m.running = true
	m.log.Info("scheduler manager started")
	return nil
}

// Stop signals both loops and waits for them, honoring ctx as a deadline.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("scheduler manager stopped")
	case <-ctx.Done():
		m.log.Warn("scheduler manager stop timed out")
		return ctx.Err()
	}

	m.running = false
	return nil
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
