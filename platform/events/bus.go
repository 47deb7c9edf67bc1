// Package events provides event bus infrastructure for decoupled,
// event-driven communication between modules.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// InMemoryBus is a process-local Bus implementation. Handlers registered
// via Subscribe are invoked in their own goroutine on Publish, or inline
// on PublishSync.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	timeout  time.Duration
	errFn    func(eventName string, err error)
}

// NewInMemoryBus creates an in-memory event bus. errFn is called for
// handler failures on the async path; pass nil to ignore them.
func NewInMemoryBus(errFn func(eventName string, err error)) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		timeout:  30 * time.Second,
		errFn:    errFn,
	}
}

// Subscribe registers a handler for the given event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to all handlers asynchronously. The caller's
// context is not reused so handlers outlive the originating request.
func (b *InMemoryBus) Publish(_ context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		go func(h Handler) {
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()

			if err := h.Handle(ctx, event); err != nil && b.errFn != nil {
				b.errFn(event.EventName(), err)
			}
		}(h)
	}
}

// PublishSync dispatches the event to all handlers inline and collects errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", event.EventName(), err))
		}
	}
	return errors.Join(errs...)
}
