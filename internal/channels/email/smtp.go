// Package email implements the email channel over SMTP via go-mail.
package email

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"time"

	"leadfunnel_backend/internal/channels"
	"leadfunnel_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements channels.EmailSender using a direct SMTP
// connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	replyTo   string
}

// NewSMTPSender creates a sender from the email configuration. Returns
// nil when email is disabled.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	if !cfg.GetEmailEnabled() {
		return nil
	}

	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
		replyTo:   cfg.GetEmailReplyToAddress(),
	}
}

func (s *SMTPSender) SendEmail(ctx context.Context, message channels.EmailMessage) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(message.To); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}

	replyTo := message.ReplyTo
	if replyTo == "" {
		replyTo = s.replyTo
	}
	if replyTo != "" {
		if err := msg.ReplyTo(replyTo); err != nil {
			return fmt.Errorf("smtp reply-to: %w", err)
		}
	}

	msg.Subject(message.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, message.HTMLBody)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// RenderNurture renders the nurture email body for a sequence step.
// reportHTML, when non-empty, is embedded below the step copy.
func RenderNurture(leadName string, step int, bookingLink, reportHTML string) (string, error) {
	data := nurtureEmailData{
		baseEmailData: baseEmailData{
			Title:    "A note from us",
			Heading:  "A note from us",
			CTALabel: "Book a call",
			CTAURL:   bookingLink,
		},
		LeadName:   leadName,
		Paragraphs: StepParagraphs(step),
		ReportHTML: template.HTML(reportHTML),
	}
	return renderEmailTemplate("nurture.html", data)
}

// RenderBooked renders the asset-pack email sent once a booking is detected.
func RenderBooked(leadName, callTime, location string) (string, error) {
	data := bookedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Your call is confirmed",
			Heading: "Your call is confirmed",
		},
		LeadName: leadName,
		CallTime: callTime,
		Location: location,
	}
	return renderEmailTemplate("booked.html", data)
}

// RenderReply renders a direct reply to an inbound message.
func RenderReply(leadName, body, bookingLink string) (string, error) {
	data := replyEmailData{
		baseEmailData: baseEmailData{
			Title:    "Re: your message",
			Heading:  "Thanks for getting back to us",
			CTALabel: "Book a call",
			CTAURL:   bookingLink,
		},
		LeadName: leadName,
		Body:     body,
	}
	return renderEmailTemplate("reply.html", data)
}
