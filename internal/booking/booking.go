// Package booking defines the booking oracle port: the authoritative
// check for whether a lead has scheduled a meeting.
package booking

import (
	"context"
	"time"
)

// Event describes a detected booking.
type Event struct {
	Reference string
	StartsAt  time.Time
	Location  string
}

// Oracle answers whether the given email booked a meeting since the
// given time. A nil Event with a nil error means no booking exists.
type Oracle interface {
	CheckBooking(ctx context.Context, email string, since time.Time) (*Event, error)
}

// NoopOracle reports no bookings. Used when no provider is configured.
type NoopOracle struct{}

func (NoopOracle) CheckBooking(context.Context, string, time.Time) (*Event, error) {
	return nil, nil
}
