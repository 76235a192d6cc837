package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/AvinFlower/shadow-link/internal/provisioner/reconciler"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// SyncScheduler periodically sweeps every user's configurations against the
// fleet's panels.
type SyncScheduler struct {
	interval time.Duration
	syncer   Syncer
	log      *logger.Logger
}

// Syncer runs a full-fleet reconciliation sweep.
type Syncer interface {
	SyncAll(ctx context.Context) (*reconciler.Summary, error)
}

func NewSyncScheduler(interval time.Duration, syncer Syncer, log *logger.Logger) *SyncScheduler {
	return &SyncScheduler{
		interval: interval,
		syncer:   syncer,
		log:      log.WithComponent("sync-scheduler"),
	}
}

// Start begins the sweep loop. Blocks until ctx is canceled.
func (s *SyncScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sync scheduler started", slog.Duration("interval", s.interval))

	// First sweep runs immediately so a restart converges without waiting a
	// full interval.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SyncScheduler) sweep(ctx context.Context) {
	summary, err := s.syncer.SyncAll(ctx)
	if err != nil {
		s.log.ErrorCtx(ctx, "scheduled sweep failed", err)
		return
	}

	if len(summary.Failures) > 0 {
		s.log.Warn("scheduled sweep finished with failures",
			slog.Int("users", summary.Users),
			slog.Int("failures", len(summary.Failures)))
	}
}
