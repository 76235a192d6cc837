// Package selector picks a server for a new configuration. Placement is
// first-fit in server id order within a country; the capacity check is a
// cached advisory read, so a full server can still be returned during a
// stampede and the panel itself is the backstop.
package selector

import (
	"context"

	"github.com/AvinFlower/shadow-link/internal/provisioner/capacity"
	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/shared/errors"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

type Selector struct {
	store db.Store
	cache capacity.Cache
	log   *logger.Logger
}

func New(store db.Store, cache capacity.Cache, log *logger.Logger) *Selector {
	return &Selector{
		store: store,
		cache: cache,
		log:   log.WithComponent("selector"),
	}
}

// Select returns the first server in the country with spare capacity, or
// (nil, nil) when every server is full or the country has no servers at all.
// Callers distinguish "no capacity" from lookup failures by the error.
func (s *Selector) Select(ctx context.Context, country string) (*db.Server, error) {
	servers, err := s.store.ListServersByCountry(ctx, country)
	if err != nil {
		return nil, errors.NewDatabaseError(errors.ErrCodeDatabase, "listing servers by country", true, err)
	}

	for i := range servers {
		server := servers[i]

		count, err := capacity.GetOrCompute(ctx, s.cache, server.ID, capacity.DefaultTTL, func(ctx context.Context) (int, error) {
			n, err := s.store.CountConfigurationsByServer(ctx, server.ID)
			if err != nil {
				return 0, errors.NewDatabaseError(errors.ErrCodeDatabase, "counting configurations", true, err)
			}
			return int(n), nil
		})
		if err != nil {
			return nil, err
		}

		if count < server.MaxUsers {
			s.log.DebugContext(ctx, "server selected",
				"server_id", server.ID,
				"country", country,
				"active_count", count,
				"max_users", server.MaxUsers)
			return &server, nil
		}
	}

	s.log.WarnContext(ctx, "no server with spare capacity", "country", country, "servers_checked", len(servers))
	return nil, nil
}
