// Package channels defines the outbound messaging ports. Each channel
// has a concrete adapter in a subpackage and a noop used when the
// provider is not configured.
package channels

import "context"

// EmailMessage is a rendered outbound email.
type EmailMessage struct {
	To       string
	Subject  string
	HTMLBody string
	ReplyTo  string
}

// EmailSender delivers email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, toPhone, body string) error
}

// CallRequest asks the voice provider to place an outbound call.
type CallRequest struct {
	ToPhone  string
	LeadName string
	Reason   string
	Context  string
}

// CallResult is the provider's acknowledgment of a placed call.
type CallResult struct {
	CallID string
	Status string
}

// VoiceCaller places outbound calls.
type VoiceCaller interface {
	PlaceCall(ctx context.Context, req CallRequest) (*CallResult, error)
}

// NoopEmailSender drops email. Used when SMTP is not configured.
type NoopEmailSender struct{}

func (NoopEmailSender) SendEmail(context.Context, EmailMessage) error { return nil }

// NoopSMSSender drops SMS.
type NoopSMSSender struct{}

func (NoopSMSSender) SendSMS(context.Context, string, string) error { return nil }

// NoopVoiceCaller declines to place calls.
type NoopVoiceCaller struct{}

func (NoopVoiceCaller) PlaceCall(context.Context, CallRequest) (*CallResult, error) {
	return &CallResult{Status: "skipped"}, nil
}
