// Package crm defines the lead record store port and its data model.
// Adapters live in subpackages; the funnel engine depends only on the
// interfaces defined here.
package crm

import (
	"context"
	"errors"
	"time"

	"leadfunnel_backend/internal/funnel/domain"
)

// ErrNotFound is returned when no lead matches the lookup.
var ErrNotFound = errors.New("lead not found")

// Lead is the canonical record the funnel operates on. The record store
// is the single source of truth; the engine re-reads before every write.
type Lead struct {
	ID             string
	ExternalID     string
	Email          string
	Phone          string
	Name           string
	Company        string
	Goals          string
	LeadType       domain.LeadType
	Priority       domain.Priority
	State          domain.State
	StateUpdatedAt time.Time
	SequenceCursor int
	LastStepSentAt *time.Time
	EnteredAt      time.Time
	Booking        *BookingInfo
	CallReference  string
}

// BookingInfo captures a detected meeting booking.
type BookingInfo struct {
	Reference string
	StartsAt  time.Time
	Location  string
}

// Activity is an auditable entry on a lead's timeline. Notes must not
// embed the lead's email or phone; identity lives on the lead record.
type Activity struct {
	ID        string
	LeadID    string
	Kind      ActivityKind
	Note      string
	Channel   string
	Direction string
	CreatedAt time.Time
}

// ActivityKind labels a timeline entry.
type ActivityKind string

const (
	ActivityStateChange ActivityKind = "state_change"
	ActivityMessage     ActivityKind = "message"
	ActivitySequence    ActivityKind = "sequence_send"
	ActivityCall        ActivityKind = "call"
	ActivityEscalation  ActivityKind = "escalation"
	ActivityBooking     ActivityKind = "booking"
)

// Directions for message activities.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// LeadUpdate is a partial update; nil fields are left untouched.
type LeadUpdate struct {
	Name           *string
	Company        *string
	Goals          *string
	Priority       *domain.Priority
	SequenceCursor *int
	LastStepSentAt *time.Time
	Booking        *BookingInfo
	CallReference  *string
}

// RecordStore is the port to the system of record for leads.
//
// UpdateState applies a state change and the explaining activity as one
// logical step: a reader never observes the new state without its
// activity, or the other way round.
type RecordStore interface {
	FindByID(ctx context.Context, id string) (*Lead, error)
	FindByEmail(ctx context.Context, email string) (*Lead, error)
	FindByPhone(ctx context.Context, phone string) (*Lead, error)
	FindByExternalID(ctx context.Context, externalID string) (*Lead, error)
	ListByState(ctx context.Context, state domain.State) ([]*Lead, error)

	Create(ctx context.Context, lead *Lead) error
	Update(ctx context.Context, id string, update LeadUpdate) error
	UpdateState(ctx context.Context, id string, newState domain.State, activity Activity) error

	AppendActivity(ctx context.Context, activity Activity) error
	RecentActivities(ctx context.Context, leadID string, limit int) ([]Activity, error)
}
