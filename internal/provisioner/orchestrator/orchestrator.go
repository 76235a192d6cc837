// Package orchestrator drives the provisioning sequence for one new
// configuration: validate, pick a server, mutate the remote panel, persist
// locally, bump the capacity cache. The remote write is the commit point;
// failures after it leave an orphaned panel entry that the reconciler adopts
// on its next pass, so no step here ever tries to undo remote state.
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AvinFlower/shadow-link/internal/provisioner/capacity"
	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/provisioner/events"
	"github.com/AvinFlower/shadow-link/internal/provisioner/panel"
	"github.com/AvinFlower/shadow-link/internal/provisioner/vless"
	"github.com/AvinFlower/shadow-link/internal/shared/errors"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// DefaultTerms maps subscription months to price.
var DefaultTerms = map[int]int{1: 100, 3: 250, 6: 500, 12: 1000}

// ServerPicker chooses a placement target, (nil, nil) meaning none available.
type ServerPicker interface {
	Select(ctx context.Context, country string) (*db.Server, error)
}

// Request asks for one new configuration.
type Request struct {
	UserID  int64
	Country string
	Months  int
}

// Result describes a successfully provisioned configuration. Warnings list
// best-effort steps that were skipped; the configuration itself is usable.
type Result struct {
	ClientUUID     string
	Link           string
	ServerID       int64
	ExpirationDate time.Time
	Price          int
	Warnings       []string
}

type Orchestrator struct {
	store  db.Store
	picker ServerPicker
	panels panel.Factory
	codec  vless.Codec
	cache  capacity.Cache
	bus    events.Bus
	log    *logger.Logger

	flow  string
	terms map[int]int

	now     func() time.Time
	newUUID func() uuid.UUID
}

func New(store db.Store, picker ServerPicker, panels panel.Factory, codec vless.Codec, cache capacity.Cache, bus events.Bus, flow string, terms map[int]int, log *logger.Logger) *Orchestrator {
	if terms == nil {
		terms = DefaultTerms
	}
	return &Orchestrator{
		store:   store,
		picker:  picker,
		panels:  panels,
		codec:   codec,
		cache:   cache,
		bus:     bus,
		log:     log.WithComponent("orchestrator"),
		flow:    flow,
		terms:   terms,
		now:     time.Now,
		newUUID: uuid.New,
	}
}

// Provision runs the full sequence for one configuration.
func (o *Orchestrator) Provision(ctx context.Context, req Request) (*Result, error) {
	op := o.log.StartOp(ctx, "provision", "user_id", req.UserID, "country", req.Country, "months", req.Months)

	price, err := o.validate(ctx, req)
	if err != nil {
		op.Fail(err, "")
		return nil, err
	}

	server, err := o.picker.Select(ctx, req.Country)
	if err != nil {
		op.Fail(err, "")
		return nil, err
	}
	if server == nil {
		err := errors.NewProvisioningError(errors.ErrCodeNoCapacity,
			fmt.Sprintf("no server with spare capacity in %q", req.Country), false, nil)
		op.Fail(err, "")
		return nil, err
	}
	op.Progress("server selected", "server_id", server.ID)

	result, err := o.remoteMutate(ctx, req, *server)
	if err != nil {
		op.Fail(err, "")
		return nil, err
	}
	result.Price = price
	op.Progress("panel updated", "client_uuid", result.ClientUUID)

	if err := o.persist(ctx, req, result); err != nil {
		// The panel entry is live but unrecorded. The reconciler adopts it
		// from the remote side, so the orphan must not be rolled back here.
		op.Fail(err, "")
		return nil, err
	}

	if _, ok, err := o.cache.Increment(ctx, server.ID, 1); err != nil {
		o.log.WarnContext(ctx, "capacity cache increment failed", "server_id", server.ID, "error", err)
	} else if !ok {
		o.log.DebugContext(ctx, "capacity cache cold, skipping increment", "server_id", server.ID)
	}

	o.publish(ctx, events.NewConfigProvisioned(req.UserID, server.ID, result.ClientUUID))
	if len(result.Warnings) > 0 {
		o.publish(ctx, events.NewProvisionDegraded(req.UserID, server.ID, result.ClientUUID, result.Warnings))
	}

	op.Complete("configuration provisioned", "client_uuid", result.ClientUUID, "warnings", len(result.Warnings))
	return result, nil
}

func (o *Orchestrator) validate(ctx context.Context, req Request) (int, error) {
	if strings.TrimSpace(req.Country) == "" {
		return 0, errors.NewProvisioningError(errors.ErrCodeInvalidArgument, "country is required", false, nil)
	}
	price, ok := o.terms[req.Months]
	if !ok {
		return 0, errors.NewProvisioningError(errors.ErrCodeInvalidArgument,
			fmt.Sprintf("unsupported subscription term: %d months", req.Months), false, nil)
	}

	if _, err := o.store.GetUser(ctx, req.UserID); err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.NewProvisioningError(errors.ErrCodeNotFound,
				fmt.Sprintf("user %d does not exist", req.UserID), false, err)
		}
		return 0, errors.NewDatabaseError(errors.ErrCodeDatabase, "looking up user", true, err)
	}
	return price, nil
}

// remoteMutate performs the panel write. Everything up to AppendClient is
// read-only; AppendClient is the commit point. The traffic record and the
// panel restart are best-effort and degrade into warnings.
func (o *Orchestrator) remoteMutate(ctx context.Context, req Request, server db.Server) (*Result, error) {
	client, err := o.panels(server)
	if err != nil {
		return nil, errors.NewPanelError(errors.ErrCodeConfiguration,
			fmt.Sprintf("building panel client for server %d", server.ID), false, err)
	}

	inbound, err := client.ReadInbound(ctx, server.PanelPort)
	if err != nil {
		return nil, err
	}

	id := o.newUUID()
	clientUUID := base64.RawURLEncoding.EncodeToString(id[:])
	label := fmt.Sprintf("Unknown_Soldier_%d_%s", req.UserID, emailSuffix(o.newUUID()))
	expiration := o.now().UTC().AddDate(0, req.Months, 0)
	link := o.codec.BuildLink(clientUUID, server.Host, server.PanelPort, o.flow, inbound.ShortID, label)

	entry := panel.ClientEntry{
		ID:         clientUUID,
		Email:      label,
		Enable:     true,
		ExpiryTime: panel.ExpiryMillis(expiration),
		Flow:       o.flow,
		Link:       link,
		UserID:     req.UserID,
		Months:     req.Months,
		Host:       server.Host,
	}
	if err := client.AppendClient(ctx, inbound, entry); err != nil {
		return nil, err
	}

	var warnings []string
	if err := client.InsertTrafficRecord(ctx, label, expiration); err != nil {
		o.log.WarnContext(ctx, "traffic record insert failed", "server_id", server.ID, "email", label, "error", err)
		warnings = append(warnings, fmt.Sprintf("traffic record not written: %v", err))
	}
	if err := client.RestartPanel(ctx); err != nil {
		o.log.WarnContext(ctx, "panel restart failed", "server_id", server.ID, "error", err)
		warnings = append(warnings, fmt.Sprintf("panel not restarted: %v", err))
	}

	return &Result{
		ClientUUID:     clientUUID,
		Link:           link,
		ServerID:       server.ID,
		ExpirationDate: expiration,
		Warnings:       warnings,
	}, nil
}

func (o *Orchestrator) persist(ctx context.Context, req Request, result *Result) error {
	_, err := o.store.CreateConfiguration(ctx, db.CreateConfigurationParams{
		UserID:         req.UserID,
		ServerID:       result.ServerID,
		ClientUUID:     result.ClientUUID,
		ConfigLink:     result.Link,
		Months:         req.Months,
		ExpirationDate: result.ExpirationDate,
	})
	if err != nil {
		return errors.NewDatabaseError(errors.ErrCodeDatabase,
			fmt.Sprintf("recording configuration %s (panel entry retained)", result.ClientUUID), true, err)
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	if err := o.bus.Publish(ctx, event); err != nil {
		o.log.WarnContext(ctx, "event publish failed", "type", event.Type(), "error", err)
	}
}

// emailSuffix renders the 8-hex-char discriminator appended to client labels.
func emailSuffix(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
