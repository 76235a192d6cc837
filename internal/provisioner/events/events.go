// Package events carries in-process notifications about provisioning and
// reconciliation outcomes. Handlers are best-effort observers: publishing
// failures are logged by callers, never turned into operation failures.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the provisioner.
const (
	TypeConfigProvisioned  = "config.provisioned"
	TypeProvisionDegraded  = "provision.degraded"
	TypeReconcileCompleted = "reconcile.completed"
)

// Event is the payload contract shared by all bus events.
type Event interface {
	ID() string
	Type() string
	Timestamp() time.Time
	Metadata() map[string]any
}

// Handler processes one event. Returning an error marks the dispatch failed
// but does not stop other handlers.
type Handler func(ctx context.Context, event Event) error

// UnsubscribeFunc removes a previously registered handler.
type UnsubscribeFunc func() error

// Bus publishes events to subscribed handlers.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType string, handler Handler) (UnsubscribeFunc, error)
	Close() error
}

// BaseEvent is the common Event implementation.
type BaseEvent struct {
	id        string
	eventType string
	timestamp time.Time
	metadata  map[string]any
}

func NewBaseEvent(eventType string, metadata map[string]any) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &BaseEvent{
		id:        uuid.New().String(),
		eventType: eventType,
		timestamp: time.Now().UTC(),
		metadata:  metadata,
	}
}

func (e *BaseEvent) ID() string { return e.id }

func (e *BaseEvent) Type() string { return e.eventType }

func (e *BaseEvent) Timestamp() time.Time { return e.timestamp }

func (e *BaseEvent) Metadata() map[string]any { return e.metadata }

// NewConfigProvisioned reports a successfully created configuration.
func NewConfigProvisioned(userID, serverID int64, clientUUID string) *BaseEvent {
	return NewBaseEvent(TypeConfigProvisioned, map[string]any{
		"user_id":     userID,
		"server_id":   serverID,
		"client_uuid": clientUUID,
	})
}

// NewProvisionDegraded reports a provisioning run that succeeded but skipped
// best-effort steps, such as the panel restart.
func NewProvisionDegraded(userID, serverID int64, clientUUID string, warnings []string) *BaseEvent {
	return NewBaseEvent(TypeProvisionDegraded, map[string]any{
		"user_id":     userID,
		"server_id":   serverID,
		"client_uuid": clientUUID,
		"warnings":    warnings,
	})
}

// NewReconcileCompleted reports one user's reconciliation pass.
func NewReconcileCompleted(userID int64, inserted, updated, deleted int) *BaseEvent {
	return NewBaseEvent(TypeReconcileCompleted, map[string]any{
		"user_id":  userID,
		"inserted": inserted,
		"updated":  updated,
		"deleted":  deleted,
	})
}
