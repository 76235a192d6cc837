package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvinFlower/shadow-link/internal/provisioner/capacity"
	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/provisioner/reconciler"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

type fakeSyncer struct {
	calls atomic.Int64
}

func (s *fakeSyncer) SyncAll(context.Context) (*reconciler.Summary, error) {
	s.calls.Add(1)
	return &reconciler.Summary{}, nil
}

func TestManagerLifecycle(t *testing.T) {
	_, store := db.NewTestDB(t)
	cache := capacity.NewMemoryCache()
	syncer := &fakeSyncer{}
	log := logger.NewDevelopment("scheduler-test")

	mgr := NewManager(time.Hour, time.Hour, time.Hour, syncer, store, cache, log)
	assert.False(t, mgr.IsRunning())

	require.NoError(t, mgr.Start(context.Background()))
	assert.True(t, mgr.IsRunning())

	// Both loops fire once immediately on start.
	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, mgr.Stop(stopCtx))
	assert.False(t, mgr.IsRunning())
}

func TestManagerStartTwice(t *testing.T) {
	_, store := db.NewTestDB(t)
	mgr := NewManager(time.Hour, time.Hour, time.Hour, &fakeSyncer{}, store, capacity.NewMemoryCache(), logger.NewDevelopment("scheduler-test"))

	require.NoError(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Start(context.Background()), "second start is a logged no-op")

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, mgr.Stop(stopCtx))
}

func TestRefreshSchedulerWarmsCache(t *testing.T) {
	ctx := context.Background()
	_, store := db.NewTestDB(t)
	cache := capacity.NewMemoryCache()

	server := db.SeedTestServer(t, store, db.CreateServerParams{
		Country:     "NL",
		Host:        "10.0.0.1",
		SSHPort:     22,
		SSHUsername: "root",
		SSHPassword: "secret",
		MaxUsers:    5,
		PanelPort:   8443,
		PanelURL:    "https://10.0.0.1:2053",
	})
	user := db.SeedTestUser(t, store, "occupant")
	db.SeedTestConfiguration(t, store, db.CreateConfigurationParams{
		UserID:     user.ID,
		ServerID:   server.ID,
		ClientUUID: "warm-uuid",
	})

	s := NewRefreshScheduler(time.Hour, time.Minute, store, cache, logger.NewDevelopment("scheduler-test"))
	s.refresh(ctx)

	count, ok, err := cache.Get(ctx, server.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, count)
}
