// Package notify defines the operator notification sink. Notifications
// are fire-and-forget: delivery failures are logged, never returned to
// the funnel flow.
package notify

import "context"

// LeadRef carries just enough lead identity for an operator message.
type LeadRef struct {
	ID       string
	Name     string
	Company  string
	State    string
	Priority string
}

// Notifier delivers operator-facing messages.
type Notifier interface {
	Notify(ctx context.Context, message string, lead *LeadRef)
}

// Noop drops notifications.
type Noop struct{}

func (Noop) Notify(context.Context, string, *LeadRef) {}
