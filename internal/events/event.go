// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leadfunnel_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Funnel Domain Events
// =============================================================================

// LeadSubmitted is published when a new intake form submission lands.
type LeadSubmitted struct {
	BaseEvent
	LeadID   string `json:"leadId"`
	LeadType string `json:"leadType"`
	Priority string `json:"priority"`
}

func (e LeadSubmitted) EventName() string { return "funnel.lead.submitted" }

// LeadStateChanged is published on every lifecycle transition.
type LeadStateChanged struct {
	BaseEvent
	LeadID    string `json:"leadId"`
	FromState string `json:"fromState"`
	ToState   string `json:"toState"`
	Reason    string `json:"reason"`
}

func (e LeadStateChanged) EventName() string { return "funnel.lead.state_changed" }

// LeadReplied is published when an inbound message resolves to a lead.
type LeadReplied struct {
	BaseEvent
	LeadID  string `json:"leadId"`
	Channel string `json:"channel"`
	Intent  string `json:"intent"`
}

func (e LeadReplied) EventName() string { return "funnel.lead.replied" }

// BookingDetected is published when the booking oracle confirms a meeting.
type BookingDetected struct {
	BaseEvent
	LeadID    string    `json:"leadId"`
	Reference string    `json:"reference"`
	StartsAt  time.Time `json:"startsAt"`
}

func (e BookingDetected) EventName() string { return "funnel.booking.detected" }

// EscalationRaised is published when a lead needs human attention.
type EscalationRaised struct {
	BaseEvent
	LeadID string `json:"leadId"`
	Reason string `json:"reason"`
}

func (e EscalationRaised) EventName() string { return "funnel.escalation.raised" }

// SequenceCompleted is published when a lead exhausts the nurture
// sequence without converting.
type SequenceCompleted struct {
	BaseEvent
	LeadID string `json:"leadId"`
}

func (e SequenceCompleted) EventName() string { return "funnel.sequence.completed" }

// CallEnded is published when the voice provider reports a finished call.
type CallEnded struct {
	BaseEvent
	LeadID  string `json:"leadId"`
	CallID  string `json:"callId"`
	Outcome string `json:"outcome"`
}

func (e CallEnded) EventName() string { return "funnel.call.ended" }

// SweepCompleted is published after each periodic sweep with its summary.
type SweepCompleted struct {
	BaseEvent
	LeadsProcessed   int `json:"leadsProcessed"`
	EmailsSent       int `json:"emailsSent"`
	BookingsDetected int `json:"bookingsDetected"`
	Escalations      int `json:"escalations"`
	Errors           int `json:"errors"`
}

func (e SweepCompleted) EventName() string { return "funnel.sweep.completed" }
