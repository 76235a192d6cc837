// Package reconciler converges local configuration rows with the entries
// actually present on the fleet's panels. The panels are the source of truth:
// entries missing locally are adopted, drifted fields are overwritten from
// the remote copy, and rows whose entry is gone are deleted. It is the only
// component that repairs partial provisioning failures, so it never skips a
// repair it can prove is safe.
package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AvinFlower/shadow-link/internal/provisioner/capacity"
	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/provisioner/events"
	"github.com/AvinFlower/shadow-link/internal/provisioner/panel"
	"github.com/AvinFlower/shadow-link/internal/shared/errors"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// DefaultPerServerTimeout bounds one panel read during a sweep so a single
// hung host cannot stall the whole pass.
const DefaultPerServerTimeout = 30 * time.Second

type Reconciler struct {
	store  db.Store
	panels panel.Factory
	cache  capacity.Cache
	bus    events.Bus
	log    *logger.Logger

	perServerTimeout time.Duration
}

// UserSummary reports what one user's sync changed.
type UserSummary struct {
	UserID             int64
	Inserted           int
	Updated            int
	Deleted            int
	UnreachableServers []int64
}

// Summary aggregates a full-fleet sweep. Failures maps user id to the error
// that aborted that user's sync; other users are unaffected.
type Summary struct {
	Users    int
	Inserted int
	Updated  int
	Deleted  int
	Failures map[int64]error
}

func New(store db.Store, panels panel.Factory, cache capacity.Cache, bus events.Bus, perServerTimeout time.Duration, log *logger.Logger) *Reconciler {
	if perServerTimeout <= 0 {
		perServerTimeout = DefaultPerServerTimeout
	}
	return &Reconciler{
		store:            store,
		panels:           panels,
		cache:            cache,
		bus:              bus,
		log:              log.WithComponent("reconciler"),
		perServerTimeout: perServerTimeout,
	}
}

// remoteEntry is one panel client entry tagged with the server it lives on.
type remoteEntry struct {
	serverID int64
	entry    panel.ClientEntry
}

// SyncUser converges one user's rows against every reachable panel. All row
// mutations commit in a single transaction; an unreachable server excludes
// both its remote entries and its local rows from the diff, because absence
// of evidence from a dead host is not evidence of absence.
func (r *Reconciler) SyncUser(ctx context.Context, userID int64) (*UserSummary, error) {
	op := r.log.StartOp(ctx, "sync_user", "user_id", userID)

	if _, err := r.store.GetUser(ctx, userID); err != nil {
		if err == sql.ErrNoRows {
			err := errors.NewReconcileError(errors.ErrCodeNotFound, fmt.Sprintf("user %d does not exist", userID), false, err)
			op.Fail(err, "")
			return nil, err
		}
		err = errors.NewDatabaseError(errors.ErrCodeDatabase, "looking up user", true, err)
		op.Fail(err, "")
		return nil, err
	}

	servers, err := r.store.ListServers(ctx)
	if err != nil {
		err = errors.NewDatabaseError(errors.ErrCodeDatabase, "listing servers", true, err)
		op.Fail(err, "")
		return nil, err
	}

	remote, unreachable := r.collectRemote(ctx, servers, userID)
	op.Progress("remote state collected", "entries", len(remote), "unreachable", len(unreachable))

	local, err := r.store.ListConfigurationsByUser(ctx, userID)
	if err != nil {
		err = errors.NewDatabaseError(errors.ErrCodeDatabase, "listing configurations", true, err)
		op.Fail(err, "")
		return nil, err
	}

	plan := diff(local, remote, unreachable, userID)
	summary := &UserSummary{UserID: userID, UnreachableServers: unreachableIDs(unreachable)}

	if len(plan.inserts) == 0 && len(plan.updates) == 0 && len(plan.deletes) == 0 {
		op.Complete("already converged")
		return summary, nil
	}

	err = r.store.ExecTx(ctx, func(q *db.Queries) error {
		for _, ins := range plan.inserts {
			if _, err := q.CreateConfiguration(ctx, ins); err != nil {
				return fmt.Errorf("adopting %s: %w", ins.ClientUUID, err)
			}
		}
		for _, upd := range plan.updates {
			if err := q.UpdateConfiguration(ctx, upd); err != nil {
				return fmt.Errorf("updating %s: %w", upd.ClientUUID, err)
			}
		}
		for _, clientUUID := range plan.deletes {
			if err := q.DeleteConfigurationByClientUUID(ctx, clientUUID); err != nil {
				return fmt.Errorf("deleting %s: %w", clientUUID, err)
			}
		}
		return nil
	})
	if err != nil {
		err = errors.NewReconcileError(errors.ErrCodeDatabase, "applying sync transaction", true, err)
		op.Fail(err, "")
		return nil, err
	}

	summary.Inserted = len(plan.inserts)
	summary.Updated = len(plan.updates)
	summary.Deleted = len(plan.deletes)

	r.refreshCounts(ctx, plan.touchedServers)
	r.publish(ctx, events.NewReconcileCompleted(userID, summary.Inserted, summary.Updated, summary.Deleted))

	op.Complete("configurations converged",
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"deleted", summary.Deleted)
	return summary, nil
}

// SyncAll sweeps every known user. One user's failure is recorded and the
// sweep moves on; only the initial user listing can fail the call.
func (r *Reconciler) SyncAll(ctx context.Context) (*Summary, error) {
	op := r.log.StartOp(ctx, "sync_all")

	users, err := r.store.ListUsers(ctx)
	if err != nil {
		err = errors.NewDatabaseError(errors.ErrCodeDatabase, "listing users", true, err)
		op.Fail(err, "")
		return nil, err
	}

	summary := &Summary{Users: len(users), Failures: make(map[int64]error)}
	for _, user := range users {
		if ctx.Err() != nil {
			op.Fail(ctx.Err(), "sweep interrupted")
			return summary, ctx.Err()
		}

		userSummary, err := r.SyncUser(ctx, user.ID)
		if err != nil {
			summary.Failures[user.ID] = err
			r.log.ErrorCtx(ctx, "user sync failed", err, "user_id", user.ID)
			continue
		}
		summary.Inserted += userSummary.Inserted
		summary.Updated += userSummary.Updated
		summary.Deleted += userSummary.Deleted
	}

	op.Complete("sweep finished",
		"users", summary.Users,
		"failures", len(summary.Failures),
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"deleted", summary.Deleted)
	return summary, nil
}

// collectRemote reads this user's entries from every panel. Servers that
// cannot be read end up in the unreachable set instead of contributing an
// empty entry list.
func (r *Reconciler) collectRemote(ctx context.Context, servers []db.Server, userID int64) ([]remoteEntry, map[int64]bool) {
	var remote []remoteEntry
	unreachable := make(map[int64]bool)

	for _, server := range servers {
		entries, err := r.listServerClients(ctx, server)
		if err != nil {
			unreachable[server.ID] = true
			r.log.WarnContext(ctx, "server skipped during sync",
				"server_id", server.ID,
				"host", server.Host,
				"error", err)
			continue
		}
		for _, entry := range entries {
			if entry.UserID != userID {
				continue
			}
			remote = append(remote, remoteEntry{serverID: server.ID, entry: entry})
		}
	}
	return remote, unreachable
}

func (r *Reconciler) listServerClients(ctx context.Context, server db.Server) ([]panel.ClientEntry, error) {
	client, err := r.panels(server)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.perServerTimeout)
	defer cancel()
	return client.ListClients(ctx, server.PanelPort)
}

// syncPlan is the computed set of row mutations for one user.
type syncPlan struct {
	inserts        []db.CreateConfigurationParams
	updates        []db.UpdateConfigurationParams
	deletes        []string
	touchedServers map[int64]bool
}

// diff computes the plan. The remote copy wins every field conflict, and a
// local row is only deleted when the server it points at answered the sweep.
func diff(local []db.UserConfiguration, remote []remoteEntry, unreachable map[int64]bool, userID int64) syncPlan {
	plan := syncPlan{touchedServers: make(map[int64]bool)}

	localByUUID := make(map[string]db.UserConfiguration, len(local))
	for _, row := range local {
		localByUUID[row.ClientUUID] = row
	}

	seen := make(map[string]bool, len(remote))
	for _, re := range remote {
		entry := re.entry
		seen[entry.ID] = true

		row, exists := localByUUID[entry.ID]
		if !exists {
			plan.inserts = append(plan.inserts, db.CreateConfigurationParams{
				UserID:         userID,
				ServerID:       re.serverID,
				ClientUUID:     entry.ID,
				ConfigLink:     entry.Link,
				Months:         entry.Months,
				ExpirationDate: entry.ExpiresAt(),
			})
			plan.touchedServers[re.serverID] = true
			continue
		}

		if row.ConfigLink != entry.Link ||
			row.Months != entry.Months ||
			!row.ExpirationDate.Equal(entry.ExpiresAt()) {
			plan.updates = append(plan.updates, db.UpdateConfigurationParams{
				ClientUUID:     entry.ID,
				ConfigLink:     entry.Link,
				Months:         entry.Months,
				ExpirationDate: entry.ExpiresAt(),
			})
		}
	}

	for _, row := range local {
		if seen[row.ClientUUID] || unreachable[row.ServerID] {
			continue
		}
		plan.deletes = append(plan.deletes, row.ClientUUID)
		plan.touchedServers[row.ServerID] = true
	}

	return plan
}

// refreshCounts recomputes the capacity cache for servers whose row count
// changed. Best effort: a failed refresh only shortens the cache's accuracy
// until its TTL expires or the next sweep.
func (r *Reconciler) refreshCounts(ctx context.Context, serverIDs map[int64]bool) {
	for serverID := range serverIDs {
		count, err := r.store.CountConfigurationsByServer(ctx, serverID)
		if err != nil {
			r.log.WarnContext(ctx, "capacity recount failed", "server_id", serverID, "error", err)
			continue
		}
		if err := r.cache.Set(ctx, serverID, int(count), capacity.DefaultTTL); err != nil {
			r.log.WarnContext(ctx, "capacity cache refresh failed", "server_id", serverID, "error", err)
		}
	}
}

func (r *Reconciler) publish(ctx context.Context, event events.Event) {
	if err := r.bus.Publish(ctx, event); err != nil {
		r.log.WarnContext(ctx, "event publish failed", "type", event.Type(), "error", err)
	}
}

func unreachableIDs(set map[int64]bool) []int64 {
	if len(set) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
