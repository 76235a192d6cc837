package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/AvinFlower/shadow-link/internal/provisioner/capacity"
	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// RefreshScheduler periodically recomputes every server's active
// configuration count from the database into the capacity cache, keeping the
// cache warm so placement rarely pays a cold recount.
type RefreshScheduler struct {
	interval time.Duration
	ttl      time.Duration
	store    db.Store
	cache    capacity.Cache
	log      *logger.Logger
}

func NewRefreshScheduler(interval, ttl time.Duration, store db.Store, cache capacity.Cache, log *logger.Logger) *RefreshScheduler {
	if ttl <= 0 {
		ttl = capacity.DefaultTTL
	}
	return &RefreshScheduler{
		interval: interval,
		ttl:      ttl,
		store:    store,
		cache:    cache,
		log:      log.WithComponent("refresh-scheduler"),
	}
}

// Start begins the refresh loop. Blocks until ctx is canceled.
func (s *RefreshScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("capacity refresh scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("ttl", s.ttl))

	s.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("capacity refresh scheduler stopped")
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh recounts every server. Failures are logged per server; a miss just
// means placement recomputes on demand.
func (s *RefreshScheduler) refresh(ctx context.Context) {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		s.log.ErrorCtx(ctx, "capacity refresh list failed", err)
		return
	}

	refreshed := 0
	for _, server := range servers {
		count, err := s.store.CountConfigurationsByServer(ctx, server.ID)
		if err != nil {
			s.log.ErrorCtx(ctx, "capacity recount failed", err, slog.Int64("server_id", server.ID))
			continue
		}
		if err := s.cache.Set(ctx, server.ID, int(count), s.ttl); err != nil {
			s.log.ErrorCtx(ctx, "capacity cache write failed", err, slog.Int64("server_id", server.ID))
			continue
		}
		refreshed++
	}

	s.log.Debug("capacity cache refreshed",
		slog.Int("servers", len(servers)),
		slog.Int("refreshed", refreshed))
}
