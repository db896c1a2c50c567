// Package pubsub provides a generic publish/subscribe event system. The
// entity engine publishes one event per committed mutation and the log
// package publishes entries for live tailing; both go through the same
// broker.
package pubsub

import (
	"context"
	"time"
)

// EventType tells creations, updates and deletions apart.
type EventType string

// Entity lifecycle events, published after the owning transaction
// commits. Updated events carry the author, comment and replaced values
// of the save that produced them; created and deleted events carry the
// object's identity only.
const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event is a published event with a typed payload and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
