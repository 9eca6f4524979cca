// Package eventbus provides event-driven communication infrastructure for
// run orchestration.
package eventbus

import (
	"context"

	"github.com/skillweave/skillweave/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// SessionSubscriber scopes a handler to one divergent session. Only events
// carrying that session key reach the handler.
type SessionSubscriber interface {
	HandleSession(sessionID string, handler EventHandler)
	DropSession(sessionID string)
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	SessionSubscriber
	Close() error
	GenerateID() string
}
