// Package analyzer classifies inbound lead messages and recommends the
// next action. Implementations must never propagate classification
// failures: when analysis cannot complete, they return the safe default
// which escalates to a human.
package analyzer

import "context"

// NextAction is the router dispatch tag.
type NextAction string

const (
	ActionRespond  NextAction = "respond"
	ActionBook     NextAction = "book"
	ActionEscalate NextAction = "escalate"
	ActionClose    NextAction = "close"
	ActionNone     NextAction = "none"
)

// Message is a normalized inbound message.
type Message struct {
	Channel string
	Sender  string
	Body    string
}

// LeadContext is the lead profile handed to the analyzer alongside the
// message.
type LeadContext struct {
	Name           string
	Company        string
	LeadType       string
	Priority       string
	State          string
	SequenceCursor int
	Goals          string
}

// HistoryEntry is one prior exchange, oldest first.
type HistoryEntry struct {
	Direction string
	Body      string
}

// Classification is the analyzer verdict.
type Classification struct {
	Intent         string
	Sentiment      string
	Qualification  string
	KeyConcerns    []string
	ShouldEscalate bool
	EscalateReason string
	SuggestedReply string
	ShouldBookCall bool
	NextAction     NextAction
}

// Analyzer classifies an inbound message in the context of its lead.
type Analyzer interface {
	Analyze(ctx context.Context, msg Message, lead LeadContext, history []HistoryEntry) (Classification, error)
}

// SafeDefault is the classification used when analysis fails. It routes
// to a human rather than guessing.
func SafeDefault(reason string) Classification {
	if reason == "" {
		reason = "analysis unavailable"
	}
	return Classification{
		Intent:         "unknown",
		Sentiment:      "neutral",
		Qualification:  "unknown",
		ShouldEscalate: true,
		EscalateReason: reason,
		NextAction:     ActionEscalate,
	}
}
