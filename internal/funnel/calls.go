package funnel

import (
	"context"
	"fmt"

	"leadfunnel_backend/internal/channels"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/phone"
)

// MaybeTriggerCall evaluates the call policy for a lead and, when it
// fires, moves the lead to CALLING and places the call. Returns true
// when a call was placed.
func (e *Engine) MaybeTriggerCall(ctx context.Context, leadID string) (bool, error) {
	if !e.markRunning("call", leadID) {
		return false, nil
	}
	defer e.markComplete("call", leadID)

	lead, err := e.store.FindByID(ctx, leadID)
	if err != nil {
		return false, err
	}

	eligibility := domain.CallEligibility{
		LeadType:  lead.LeadType,
		Priority:  lead.Priority,
		Cursor:    lead.SequenceCursor,
		HasBooked: lead.Booking != nil,
	}
	exchanges := e.recentExchangeBodies(ctx, lead.ID)
	if !domain.ShouldTriggerCall(eligibility, exchanges) {
		return false, nil
	}

	reason := domain.DetermineCallReason(exchanges)
	if err := e.placeCall(ctx, lead, reason); err != nil {
		return false, err
	}
	return true, nil
}

// placeCall transitions the lead to CALLING and asks the voice provider
// to dial. The transition happens first so a provider callback arriving
// quickly always finds the lead in CALLING.
func (e *Engine) placeCall(ctx context.Context, lead *crm.Lead, reason domain.CallReason) error {
	if lead.Phone == "" {
		e.escalate(ctx, lead, "call warranted but no phone on record")
		return nil
	}

	if err := e.transition(ctx, lead, domain.StateCalling, "call triggered: "+string(reason)); err != nil {
		return err
	}

	result, err := e.voice.PlaceCall(ctx, channels.CallRequest{
		ToPhone:  lead.Phone,
		LeadName: lead.Name,
		Reason:   string(reason),
		Context:  lead.Goals,
	})
	if err != nil {
		// Dial failed; put the lead back in the nurture pool.
		if terr := e.transition(ctx, lead, domain.StateNurturing, "call placement failed"); terr != nil {
			e.log.Error("rollback to nurturing failed", "lead_id", lead.ID, "error", terr.Error())
		}
		return fmt.Errorf("placing call: %w", err)
	}

	ref := result.CallID
	if err := e.store.Update(ctx, lead.ID, crm.LeadUpdate{CallReference: &ref}); err != nil {
		return err
	}
	lead.CallReference = ref

	if err := e.store.AppendActivity(ctx, crm.Activity{
		LeadID:    lead.ID,
		Kind:      crm.ActivityCall,
		Note:      fmt.Sprintf("outbound call placed (%s)", reason),
		Channel:   "voice",
		Direction: crm.DirectionOutbound,
		CreatedAt: e.now().UTC(),
	}); err != nil {
		e.log.Warn("call activity append failed", "lead_id", lead.ID, "error", err.Error())
	}

	e.log.Info("call placed", "lead_id", lead.ID, "call_id", ref, "reason", string(reason))
	return nil
}

// HandleCallEnded processes the voice provider's end-of-call report,
// classifying the transcript into an outcome and routing the lead on.
// The lead is matched by provider call ID, falling back to the caller's
// phone number.
func (e *Engine) HandleCallEnded(ctx context.Context, callID, callerPhone, transcript string) error {
	lead, err := e.findByCallReference(ctx, callID)
	if err != nil && callerPhone != "" {
		lead, err = e.store.FindByPhone(ctx, phone.NormalizeE164(callerPhone))
	}
	if err != nil {
		return err
	}

	if !e.markRunning("call-ended", lead.ID) {
		return nil
	}
	defer e.markComplete("call-ended", lead.ID)

	lead, err = e.store.FindByID(ctx, lead.ID)
	if err != nil {
		return err
	}
	if lead.State != domain.StateCalling {
		return apperr.New(apperr.KindConflict,
			fmt.Sprintf("call ended for lead in state %s", lead.State)).
			WithOp("funnel.HandleCallEnded")
	}

	outcome := domain.ClassifyCallOutcome(transcript)

	if err := e.store.AppendActivity(ctx, crm.Activity{
		LeadID:    lead.ID,
		Kind:      crm.ActivityCall,
		Note:      fmt.Sprintf("call ended: %s", outcome),
		Channel:   "voice",
		Direction: crm.DirectionInbound,
		CreatedAt: e.now().UTC(),
	}); err != nil {
		e.log.Warn("call activity append failed", "lead_id", lead.ID, "error", err.Error())
	}

	switch outcome {
	case domain.OutcomeBooked:
		err = e.transition(ctx, lead, domain.StateCallBooked, "call outcome: booked")
		if err == nil {
			e.notifier.Notify(ctx, "call booked a meeting", leadRef(lead))
		}
	case domain.OutcomeNotInterested:
		err = e.transition(ctx, lead, domain.StateClosedLost, "call outcome: not interested")
	default:
		err = e.transition(ctx, lead, domain.StateNurturing, "call outcome: needs follow-up")
	}
	if err != nil {
		return err
	}

	if e.bus != nil {
		e.bus.Publish(ctx, events.CallEnded{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			CallID:    callID,
			Outcome:   string(outcome),
		})
	}

	return nil
}

// findByCallReference scans the CALLING pool for the lead owning the
// given provider call ID. The pool is small; a linear scan keeps the
// record store port free of provider-specific lookups.
func (e *Engine) findByCallReference(ctx context.Context, callID string) (*crm.Lead, error) {
	leads, err := e.store.ListByState(ctx, domain.StateCalling)
	if err != nil {
		return nil, err
	}
	for _, lead := range leads {
		if lead.CallReference == callID {
			return lead, nil
		}
	}
	return nil, apperr.Wrap(apperr.KindNotFound, "no lead for call "+callID, crm.ErrNotFound).
		WithOp("funnel.HandleCallEnded")
}
