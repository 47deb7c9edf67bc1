package domain

import "strings"

// CallReason explains why an outbound call is being placed and selects
// the assistant's opening script.
type CallReason string

const (
	CallReasonFollowUp        CallReason = "follow_up"
	CallReasonPricingQuestion CallReason = "pricing_question"
	CallReasonDemoReminder    CallReason = "demo_reminder"
)

// CallOutcome is the classified result of a finished call.
type CallOutcome string

const (
	OutcomeBooked        CallOutcome = "booked"
	OutcomeNotInterested CallOutcome = "not_interested"
	OutcomeNeedsFollowUp CallOutcome = "needs_follow_up"
)

// recentExchangeWindow is how many of the latest exchanges the keyword
// scan considers when judging buying intent.
const recentExchangeWindow = 5

var pricingKeywords = []string{"pricing", "price", "cost", "how much"}
var demoKeywords = []string{"demo"}

// CallEligibility is the intake-time profile a call decision depends on.
type CallEligibility struct {
	LeadType  LeadType
	Priority  Priority
	Cursor    int
	HasBooked bool
}

// ShouldTriggerCall decides whether a lead warrants a proactive voice
// call. A booked lead never gets one. Otherwise any of three signals
// qualifies: a high-priority wholesale lead two steps in, any lead four
// steps in, or explicit pricing/demo language in the recent exchanges.
func ShouldTriggerCall(e CallEligibility, recentExchanges []string) bool {
	if e.HasBooked {
		return false
	}
	if e.LeadType == LeadTypeWholesale && e.Priority == PriorityHigh && e.Cursor >= 2 {
		return true
	}
	if e.Cursor >= 4 {
		return true
	}
	return hasBuyingIntent(recentExchanges)
}

// DetermineCallReason picks the script for an outbound call based on the
// same exchange window used for eligibility.
func DetermineCallReason(recentExchanges []string) CallReason {
	window := lastN(recentExchanges, recentExchangeWindow)
	for _, text := range window {
		lower := strings.ToLower(text)
		for _, kw := range pricingKeywords {
			if strings.Contains(lower, kw) {
				return CallReasonPricingQuestion
			}
		}
	}
	for _, text := range window {
		lower := strings.ToLower(text)
		for _, kw := range demoKeywords {
			if strings.Contains(lower, kw) {
				return CallReasonDemoReminder
			}
		}
	}
	return CallReasonFollowUp
}

func hasBuyingIntent(recentExchanges []string) bool {
	for _, text := range lastN(recentExchanges, recentExchangeWindow) {
		lower := strings.ToLower(text)
		for _, kw := range append(append([]string{}, pricingKeywords...), demoKeywords...) {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// ClassifyCallOutcome is the keyword fallback for call transcripts. It
// always yields one of the three outcomes; an empty transcript means the
// lead needs another touch.
func ClassifyCallOutcome(transcript string) CallOutcome {
	lower := strings.ToLower(transcript)

	for _, kw := range []string{"calendar", "book", "schedule a time", "send me the link"} {
		if strings.Contains(lower, kw) {
			return OutcomeBooked
		}
	}
	for _, kw := range []string{"not interested", "no thanks", "stop calling", "don't call"} {
		if strings.Contains(lower, kw) {
			return OutcomeNotInterested
		}
	}
	return OutcomeNeedsFollowUp
}
