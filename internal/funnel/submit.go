package funnel

import (
	"context"
	"fmt"
	"strings"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/channels"
	"leadfunnel_backend/internal/channels/email"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/internal/reports"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/sanitize"
)

// ProcessSubmission handles a new form submission end to end: classify,
// upsert the record, check for an existing booking, and either confirm
// the booking or start the nurture sequence with step 1.
//
// Resubmissions with a known external ID update the profile fields but
// never restart a sequence already in flight.
func (e *Engine) ProcessSubmission(ctx context.Context, sub domain.Submission) (*crm.Lead, error) {
	sub.Email = strings.ToLower(strings.TrimSpace(sub.Email))
	if sub.Email == "" {
		return nil, apperr.New(apperr.KindValidation, "submission requires an email").
			WithOp("funnel.ProcessSubmission")
	}
	sub.Name = sanitize.Text(sub.Name)
	sub.Company = sanitize.Text(sub.Company)
	sub.Goals = sanitize.Text(sub.Goals)

	leadType := domain.ClassifyLeadType(sub.ProductLine)
	priority := domain.ClassifyPriority(sub, leadType)

	lead, err := e.resolveSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}

	if lead != nil {
		// Known lead: refresh profile, leave the sequence alone.
		update := crm.LeadUpdate{Priority: &priority}
		if sub.Name != "" {
			update.Name = &sub.Name
		}
		if sub.Company != "" {
			update.Company = &sub.Company
		}
		if sub.Goals != "" {
			update.Goals = &sub.Goals
		}
		if err := e.store.Update(ctx, lead.ID, update); err != nil {
			return nil, err
		}
		e.log.Info("submission matched existing lead", "lead_id", lead.ID, "state", string(lead.State))
		return e.store.FindByID(ctx, lead.ID)
	}

	now := e.now().UTC()
	lead = &crm.Lead{
		ExternalID: sub.ExternalID,
		Email:      sub.Email,
		Phone:      sub.Phone,
		Name:       sub.Name,
		Company:    sub.Company,
		Goals:      sub.Goals,
		LeadType:   leadType,
		Priority:   priority,
		State:      domain.StateNew,
		EnteredAt:  now,
	}
	if err := e.store.Create(ctx, lead); err != nil {
		return nil, err
	}

	e.log.Info("lead created",
		"lead_id", lead.ID,
		"lead_type", string(leadType),
		"priority", string(priority))

	if e.bus != nil {
		e.bus.Publish(ctx, events.LeadSubmitted{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			LeadType:  string(leadType),
			Priority:  string(priority),
		})
	}

	if !e.markRunning("submit", lead.ID) {
		return lead, nil
	}
	defer e.markComplete("submit", lead.ID)

	event, err := e.oracle.CheckBooking(ctx, lead.Email, now.AddDate(0, 0, -30))
	if err != nil {
		e.log.Warn("booking check failed, continuing as unbooked",
			"lead_id", lead.ID, "error", err.Error())
		event = nil
	}

	if event != nil {
		if err := e.confirmBooking(ctx, lead, event); err != nil {
			return nil, err
		}
		return e.store.FindByID(ctx, lead.ID)
	}

	if err := e.transition(ctx, lead, domain.StateNurturing, "submission accepted"); err != nil {
		return nil, err
	}
	if err := e.sendSequenceStep(ctx, lead, 1); err != nil {
		// The lead is safely in NURTURING; the sweep retries step 1.
		e.log.ChannelSendFailed("email", lead.ID, err)
	}

	return e.store.FindByID(ctx, lead.ID)
}

func (e *Engine) resolveSubmission(ctx context.Context, sub domain.Submission) (*crm.Lead, error) {
	if sub.ExternalID != "" {
		lead, err := e.store.FindByExternalID(ctx, sub.ExternalID)
		if err == nil {
			return lead, nil
		}
		if err != crm.ErrNotFound {
			return nil, err
		}
	}

	lead, err := e.store.FindByEmail(ctx, sub.Email)
	if err == crm.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// confirmBooking moves the lead to BOOKED and sends the confirmation
// email with the meeting details.
func (e *Engine) confirmBooking(ctx context.Context, lead *crm.Lead, event *booking.Event) error {
	info := &crm.BookingInfo{
		Reference: event.Reference,
		StartsAt:  event.StartsAt,
		Location:  event.Location,
	}
	if err := e.store.Update(ctx, lead.ID, crm.LeadUpdate{Booking: info}); err != nil {
		return err
	}

	target := domain.StateBooked
	if lead.State == domain.StateCalling {
		target = domain.StateCallBooked
	}
	if err := e.transition(ctx, lead, target, "booking "+event.Reference); err != nil {
		return err
	}

	if e.bus != nil {
		e.bus.Publish(ctx, events.BookingDetected{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Reference: event.Reference,
			StartsAt:  event.StartsAt,
		})
	}

	body, err := email.RenderBooked(lead.Name,
		event.StartsAt.UTC().Format("Monday, January 2 at 15:04 MST"),
		event.Location)
	if err != nil {
		return fmt.Errorf("rendering booking confirmation: %w", err)
	}

	if err := e.email.SendEmail(ctx, channels.EmailMessage{
		To:       lead.Email,
		Subject:  "Your call is confirmed",
		HTMLBody: body,
	}); err != nil {
		e.log.ChannelSendFailed("email", lead.ID, err)
	}

	e.notifier.Notify(ctx, "booking confirmed", leadRef(lead))
	return nil
}

// sendSequenceStep renders and delivers one nurture email, generating
// the attached report on report steps, then advances the cursor.
func (e *Engine) sendSequenceStep(ctx context.Context, lead *crm.Lead, step int) error {
	reportHTML := ""
	if e.reports != nil && domain.IsReportStep(step) {
		html, err := e.reports.Generate(ctx, reports.Subject{
			LeadID:   lead.ID,
			Name:     lead.Name,
			Company:  lead.Company,
			Goals:    lead.Goals,
			LeadType: lead.LeadType,
		}, step)
		if err != nil {
			// The email still goes out, just without the report.
			e.log.Warn("report generation failed, sending without report",
				"lead_id", lead.ID, "step", step, "error", err.Error())
		} else {
			reportHTML = html
		}
	}

	body, err := email.RenderNurture(lead.Name, step, e.bookingLink, reportHTML)
	if err != nil {
		return fmt.Errorf("rendering step %d email: %w", step, err)
	}

	if err := e.email.SendEmail(ctx, channels.EmailMessage{
		To:       lead.Email,
		Subject:  e.cadence.Subject(step),
		HTMLBody: body,
	}); err != nil {
		return err
	}

	sentAt := e.now().UTC()
	cursor := step
	update := crm.LeadUpdate{
		SequenceCursor: &cursor,
		LastStepSentAt: &sentAt,
	}
	if err := e.store.Update(ctx, lead.ID, update); err != nil {
		return err
	}
	lead.SequenceCursor = cursor
	lead.LastStepSentAt = &sentAt

	if err := e.store.AppendActivity(ctx, crm.Activity{
		LeadID:    lead.ID,
		Kind:      crm.ActivitySequence,
		Note:      fmt.Sprintf("sequence step %d sent", step),
		Channel:   "email",
		Direction: crm.DirectionOutbound,
		CreatedAt: sentAt,
	}); err != nil {
		e.log.Warn("sequence activity append failed", "lead_id", lead.ID, "error", err.Error())
	}

	e.log.Info("sequence step sent", "lead_id", lead.ID, "step", step)
	return nil
}
