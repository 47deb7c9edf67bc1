package domain

import "strings"

// LeadType categorizes the product interest expressed on the intake form.
type LeadType string

const (
	LeadTypeConnect   LeadType = "connect"
	LeadTypeWholesale LeadType = "wholesale"
	LeadTypeAffiliate LeadType = "affiliate"
)

// Priority is the outreach urgency assigned at intake.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Submission is the raw intake form payload used for classification.
type Submission struct {
	ExternalID  string
	Email       string
	Name        string
	Company     string
	Phone       string
	ProductLine string
	Goals       string
}

// ClassifyLeadType maps the free-form product interest to a lead type.
// Unrecognized values fall back to the connect sequence rather than
// rejecting the lead.
func ClassifyLeadType(productLine string) LeadType {
	normalized := strings.ToLower(strings.TrimSpace(productLine))
	switch {
	case strings.Contains(normalized, "wholesale"), strings.Contains(normalized, "bulk"):
		return LeadTypeWholesale
	case strings.Contains(normalized, "affiliate"), strings.Contains(normalized, "partner"):
		return LeadTypeAffiliate
	default:
		return LeadTypeConnect
	}
}

// ClassifyPriority scores intake signals to decide outreach urgency.
// Wholesale interest weighs double; a phone number, a company name and
// substantive goals each add one signal.
func ClassifyPriority(sub Submission, leadType LeadType) Priority {
	signals := 0
	if leadType == LeadTypeWholesale {
		signals += 2
	}
	if strings.TrimSpace(sub.Phone) != "" {
		signals++
	}
	if strings.TrimSpace(sub.Company) != "" {
		signals++
	}
	if len(strings.TrimSpace(sub.Goals)) > 20 {
		signals++
	}

	switch {
	case signals >= 4:
		return PriorityHigh
	case signals >= 2:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
