// Package events carries domain events between modules over an
// in-process bus. Event definitions live with the domains that publish
// them; only the bus contract lives here.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName uniquely identifies the event type on the bus.
	EventName() string
	// OccurredAt reports when the event happened.
	OccurredAt() time.Time
}

// Bus publishes and subscribes to domain events.
type Bus interface {
	// Publish fans the event out to its handlers asynchronously.
	Publish(ctx context.Context, event Event)

	// PublishSync fans out inline and waits for every handler.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under the name returned by the
	// event's EventName.
	Subscribe(eventName string, handler Handler)
}

// Handler consumes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// BaseEvent supplies the timestamp every event embeds.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a new event with the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}
