package notify

import (
	"context"
	"fmt"

	"leadfunnel_backend/internal/events"
)

// SubscribeSweepSummary posts a one-line digest to the operator channel
// after every sweep, via the event bus so the engine stays unaware of
// who consumes summaries.
func SubscribeSweepSummary(bus events.Bus, notifier Notifier) {
	bus.Subscribe(events.SweepCompleted{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, event events.Event) error {
			summary, ok := event.(events.SweepCompleted)
			if !ok {
				return fmt.Errorf("unexpected event type %T", event)
			}
			notifier.Notify(ctx, fmt.Sprintf(
				"sweep complete: %d leads processed, %d emails sent, %d bookings detected, %d escalations, %d errors",
				summary.LeadsProcessed, summary.EmailsSent, summary.BookingsDetected,
				summary.Escalations, summary.Errors), nil)
			return nil
		}))
}
