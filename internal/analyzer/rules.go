package analyzer

import (
	"context"
	"strings"
)

// RulesAnalyzer is a deterministic keyword classifier. It serves as the
// analyzer when no LLM key is configured and as the in-process fallback
// for call transcripts.
type RulesAnalyzer struct{}

func NewRulesAnalyzer() *RulesAnalyzer {
	return &RulesAnalyzer{}
}

var (
	closeKeywords    = []string{"not interested", "no thanks", "unsubscribe", "stop emailing", "remove me"}
	bookKeywords     = []string{"book a call", "schedule a call", "calendar", "set up a time", "book a time"}
	escalateKeywords = []string{"pricing", "price", "cost", "how much", "demo", "contract", "legal", "refund", "complaint"}
	positiveWords    = []string{"great", "thanks", "interested", "love", "perfect"}
	negativeWords    = []string{"frustrated", "annoyed", "disappointed", "angry", "waste"}
)

func (a *RulesAnalyzer) Analyze(_ context.Context, msg Message, lead LeadContext, _ []HistoryEntry) (Classification, error) {
	lower := strings.ToLower(msg.Body)

	result := Classification{
		Intent:        "general_reply",
		Sentiment:     sentimentOf(lower),
		Qualification: qualificationOf(lead),
		NextAction:    ActionRespond,
		SuggestedReply: "Thanks for getting back to us - happy to help with that. " +
			"Would a quick call be easier? The booking link below finds a time that works.",
	}

	switch {
	case containsAny(lower, closeKeywords):
		result.Intent = "opt_out"
		result.NextAction = ActionClose
		result.SuggestedReply = ""
	case containsAny(lower, bookKeywords):
		result.Intent = "booking_request"
		result.ShouldBookCall = true
		result.NextAction = ActionBook
	case containsAny(lower, escalateKeywords):
		result.Intent = "sales_question"
		result.ShouldEscalate = true
		result.EscalateReason = "pricing or product question needs a human"
		result.NextAction = ActionEscalate
	case strings.TrimSpace(lower) == "":
		result.Intent = "empty"
		result.NextAction = ActionNone
		result.SuggestedReply = ""
	}

	return result, nil
}

func sentimentOf(lower string) string {
	switch {
	case containsAny(lower, negativeWords):
		return "negative"
	case containsAny(lower, positiveWords):
		return "positive"
	default:
		return "neutral"
	}
}

func qualificationOf(lead LeadContext) string {
	switch lead.Priority {
	case "high":
		return "hot"
	case "medium":
		return "warm"
	default:
		return "cold"
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
