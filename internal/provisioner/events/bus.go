package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gookitEvent "github.com/gookit/event"

	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

// gookitBus implements Bus on top of gookit/event's synchronous manager.
type gookitBus struct {
	manager *gookitEvent.Manager
	log     *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]int
	closed      bool
}

func NewBus(log *logger.Logger) Bus {
	return &gookitBus{
		manager:     gookitEvent.NewManager("shadow-link"),
		log:         log.WithComponent("events"),
		subscribers: make(map[string]int),
	}
}

func (b *gookitBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	b.mu.RUnlock()

	b.log.DebugContext(ctx, "publishing event",
		slog.String("type", event.Type()),
		slog.String("id", event.ID()))

	err, _ := b.manager.Fire(event.Type(), gookitEvent.M{"payload": event})
	if err != nil {
		b.log.ErrorCtx(ctx, "event dispatch failed", err, slog.String("type", event.Type()))
		return fmt.Errorf("dispatching %s: %w", event.Type(), err)
	}
	return nil
}

func (b *gookitBus) Subscribe(eventType string, handler Handler) (UnsubscribeFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	listener := gookitEvent.ListenerFunc(func(e gookitEvent.Event) error {
		payload, ok := e.Get("payload").(Event)
		if !ok {
			return fmt.Errorf("unexpected event payload: %T", e.Get("payload"))
		}
		return handler(context.Background(), payload)
	})

	b.manager.On(eventType, listener, gookitEvent.Normal)
	b.subscribers[eventType]++

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.manager.RemoveListener(eventType, listener)
		if b.subscribers[eventType]--; b.subscribers[eventType] <= 0 {
			delete(b.subscribers, eventType)
		}
		return nil
	}, nil
}

func (b *gookitBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.manager.Clear()
	b.subscribers = make(map[string]int)
	b.closed = true
	return nil
}
