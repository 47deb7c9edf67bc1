package funnel

import (
	"context"
	"fmt"
	"strings"

	"leadfunnel_backend/internal/analyzer"
	"leadfunnel_backend/internal/channels"
	"leadfunnel_backend/internal/channels/email"
	"leadfunnel_backend/internal/channels/sms"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/phone"
	"leadfunnel_backend/platform/sanitize"
)

// Channel names accepted on inbound messages.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// unknownSenderReply is the holding response for senders that resolve
// to no lead. No record is created or changed for them.
const unknownSenderReply = "Thanks for reaching out. A member of our team will get back to you shortly."

// escalationHoldingReply acknowledges a message handed to a human, so
// the lead is never left waiting in silence.
const escalationHoldingReply = "Thanks for your message. A member of our team will follow up with you personally shortly."

// InboundResult reports how an inbound message was handled and carries
// the reply body the transport should return, when there is one.
type InboundResult struct {
	LeadID string
	Action analyzer.NextAction
	Reply  string
}

// HandleInbound routes one inbound message: resolve the sender, record
// the message, classify it, and dispatch on the verdict. Unknown
// senders get a holding reply and an operator escalation without any
// record mutation.
func (e *Engine) HandleInbound(ctx context.Context, msg analyzer.Message) (*InboundResult, error) {
	msg.Channel = strings.ToLower(strings.TrimSpace(msg.Channel))
	// Inbound email bodies arrive HTML-capable; the timeline and the
	// analyzer both work on plain text.
	msg.Body = sanitize.Text(msg.Body)

	lead, err := e.resolveSender(ctx, msg)
	if err == crm.ErrNotFound {
		return e.handleUnknownSender(ctx, msg), nil
	}
	if err != nil {
		return nil, err
	}

	if !e.markRunning("inbound", lead.ID) {
		return nil, apperr.New(apperr.KindConflict, "lead is being processed").
			WithOp("funnel.HandleInbound")
	}
	defer e.markComplete("inbound", lead.ID)

	now := e.now().UTC()
	if err := e.store.AppendActivity(ctx, crm.Activity{
		LeadID:    lead.ID,
		Kind:      crm.ActivityMessage,
		Note:      msg.Body,
		Channel:   msg.Channel,
		Direction: crm.DirectionInbound,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("recording inbound message: %w", err)
	}

	// Any reply to a nurture email moves the lead to ENGAGED before
	// the verdict is dispatched.
	if lead.State == domain.StateNurturing {
		if err := e.transition(ctx, lead, domain.StateEngaged, "inbound reply"); err != nil {
			return nil, err
		}
	}

	history := e.analyzerHistory(ctx, lead.ID)
	verdict, err := e.analyzer.Analyze(ctx, msg, analyzer.LeadContext{
		Name:           lead.Name,
		Company:        lead.Company,
		LeadType:       string(lead.LeadType),
		Priority:       string(lead.Priority),
		State:          string(lead.State),
		SequenceCursor: lead.SequenceCursor,
		Goals:          lead.Goals,
	}, history)
	if err != nil {
		// Analyzers promise a safe default; a hard error still must
		// not drop the message.
		e.log.Error("analysis failed", "lead_id", lead.ID, "error", err.Error())
		verdict = analyzer.SafeDefault("")
	}

	if e.bus != nil {
		e.bus.Publish(ctx, events.LeadReplied{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Channel:   msg.Channel,
			Intent:    verdict.Intent,
		})
	}

	return e.dispatch(ctx, lead, msg, verdict)
}

// resolveSender finds the lead behind an inbound message. Email senders
// resolve by address, SMS senders by E.164 phone.
func (e *Engine) resolveSender(ctx context.Context, msg analyzer.Message) (*crm.Lead, error) {
	switch msg.Channel {
	case ChannelSMS:
		return e.store.FindByPhone(ctx, phone.NormalizeE164(msg.Sender))
	default:
		return e.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(msg.Sender)))
	}
}

func (e *Engine) handleUnknownSender(ctx context.Context, msg analyzer.Message) *InboundResult {
	e.log.Warn("inbound message from unknown sender", "channel", msg.Channel)
	e.notifier.Notify(ctx,
		fmt.Sprintf("unknown %s sender: %s", msg.Channel, msg.Sender), nil)

	return &InboundResult{
		Action: analyzer.ActionEscalate,
		Reply:  unknownSenderReply,
	}
}

// dispatch applies the verdict. Escalation takes precedence over every
// other action; a lead asking for a human never gets an automated reply
// instead.
func (e *Engine) dispatch(ctx context.Context, lead *crm.Lead, msg analyzer.Message, verdict analyzer.Classification) (*InboundResult, error) {
	action := verdict.NextAction
	if verdict.ShouldEscalate {
		action = analyzer.ActionEscalate
	}

	result := &InboundResult{LeadID: lead.ID, Action: action}

	switch action {
	case analyzer.ActionEscalate:
		reason := verdict.EscalateReason
		if reason == "" {
			reason = "inbound message needs review"
		}
		e.escalateWithHoldingReply(ctx, lead, msg.Channel, reason, result)

	case analyzer.ActionBook:
		if err := e.sendReply(ctx, lead, msg.Channel,
			"Great, here is my calendar: "+e.bookingLink); err != nil {
			return nil, err
		}
		result.Reply = "Great, here is my calendar: " + e.bookingLink

	case analyzer.ActionRespond:
		if verdict.SuggestedReply == "" {
			result.Action = analyzer.ActionEscalate
			e.escalateWithHoldingReply(ctx, lead, msg.Channel, "respond verdict without a reply", result)
			break
		}
		if err := e.sendReply(ctx, lead, msg.Channel, verdict.SuggestedReply); err != nil {
			return nil, err
		}
		result.Reply = verdict.SuggestedReply

	case analyzer.ActionClose:
		if err := e.transition(ctx, lead, domain.StateClosedLost, "opted out"); err != nil {
			return nil, err
		}

	case analyzer.ActionNone:
		// Recorded above; nothing to send.
	}

	return result, nil
}

// escalateWithHoldingReply sends the lead a holding reply over the
// channel they wrote on, then raises the operator escalation. A send
// failure never blocks the escalation itself.
func (e *Engine) escalateWithHoldingReply(ctx context.Context, lead *crm.Lead, channel, reason string, result *InboundResult) {
	if err := e.sendReply(ctx, lead, channel, escalationHoldingReply); err != nil {
		e.log.Warn("holding reply failed", "lead_id", lead.ID, "error", err.Error())
	} else {
		result.Reply = escalationHoldingReply
	}
	e.escalate(ctx, lead, reason)
}

// sendReply delivers an outbound reply over the lead's channel and
// records it on the timeline. SMS bodies are trimmed to the channel's
// length limit.
func (e *Engine) sendReply(ctx context.Context, lead *crm.Lead, channel, body string) error {
	switch channel {
	case ChannelSMS:
		body = sms.TrimBody(body)
		if err := e.sms.SendSMS(ctx, lead.Phone, body); err != nil {
			e.log.ChannelSendFailed("sms", lead.ID, err)
			return err
		}
	default:
		channel = ChannelEmail
		html, err := email.RenderReply(lead.Name, body, e.bookingLink)
		if err != nil {
			return fmt.Errorf("rendering reply: %w", err)
		}
		if err := e.email.SendEmail(ctx, channels.EmailMessage{
			To:       lead.Email,
			Subject:  "Re: your message",
			HTMLBody: html,
		}); err != nil {
			e.log.ChannelSendFailed("email", lead.ID, err)
			return err
		}
	}

	if err := e.store.AppendActivity(ctx, crm.Activity{
		LeadID:    lead.ID,
		Kind:      crm.ActivityMessage,
		Note:      body,
		Channel:   channel,
		Direction: crm.DirectionOutbound,
		CreatedAt: e.now().UTC(),
	}); err != nil {
		e.log.Warn("reply activity append failed", "lead_id", lead.ID, "error", err.Error())
	}
	return nil
}

// analyzerHistory loads the recent message exchanges as analyzer input,
// oldest first.
func (e *Engine) analyzerHistory(ctx context.Context, leadID string) []analyzer.HistoryEntry {
	activities, err := e.store.RecentActivities(ctx, leadID, historyWindow)
	if err != nil {
		e.log.Warn("history fetch failed", "lead_id", leadID, "error", err.Error())
		return nil
	}

	entries := make([]analyzer.HistoryEntry, 0, len(activities))
	for _, activity := range activities {
		if activity.Kind != crm.ActivityMessage {
			continue
		}
		entries = append(entries, analyzer.HistoryEntry{
			Direction: activity.Direction,
			Body:      activity.Note,
		})
	}
	return entries
}
