package funnel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnel/domain"
)

// sweepConcurrency bounds how many leads a sweep processes in parallel.
const sweepConcurrency = 4

// SweepSummary reports what a sweep did.
type SweepSummary struct {
	LeadsProcessed   int `json:"leadsProcessed"`
	EmailsSent       int `json:"emailsSent"`
	BookingsDetected int `json:"bookingsDetected"`
	Escalations      int `json:"escalations"`
	Errors           int `json:"errors"`
}

// RunSweep advances every nurturing lead one tick: detect bookings,
// retire exhausted sequences, and send due steps. A failure on one lead
// never stops the sweep; it is counted and the sweep moves on.
func (e *Engine) RunSweep(ctx context.Context) (SweepSummary, error) {
	leads, err := e.store.ListByState(ctx, domain.StateNurturing)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("listing nurturing leads: %w", err)
	}

	var (
		mu      sync.Mutex
		summary SweepSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, lead := range leads {
		leadID := lead.ID
		g.Go(func() error {
			outcome, err := e.sweepLead(gctx, leadID)

			mu.Lock()
			defer mu.Unlock()
			summary.LeadsProcessed++
			summary.EmailsSent += outcome.emailsSent
			summary.BookingsDetected += outcome.bookingsDetected
			summary.Escalations += outcome.escalations
			if err != nil {
				summary.Errors++
				e.log.SweepError(leadID, err)
			}
			return nil
		})
	}

	// Worker funcs never return errors; failures are counted above.
	_ = g.Wait()

	e.log.Info("sweep completed",
		"leads_processed", summary.LeadsProcessed,
		"emails_sent", summary.EmailsSent,
		"bookings_detected", summary.BookingsDetected,
		"escalations", summary.Escalations,
		"errors", summary.Errors)

	if e.bus != nil {
		e.bus.Publish(ctx, events.SweepCompleted{
			BaseEvent:        events.NewBaseEvent(),
			LeadsProcessed:   summary.LeadsProcessed,
			EmailsSent:       summary.EmailsSent,
			BookingsDetected: summary.BookingsDetected,
			Escalations:      summary.Escalations,
			Errors:           summary.Errors,
		})
	}

	return summary, nil
}

type sweepOutcome struct {
	emailsSent       int
	bookingsDetected int
	escalations      int
}

// sweepLead processes one lead. The record is re-read under the run
// guard so a webhook landing mid-sweep is not overwritten.
func (e *Engine) sweepLead(ctx context.Context, leadID string) (sweepOutcome, error) {
	var out sweepOutcome

	if !e.markRunning("sweep", leadID) {
		return out, nil
	}
	defer e.markComplete("sweep", leadID)

	lead, err := e.store.FindByID(ctx, leadID)
	if err != nil {
		return out, err
	}
	if lead.State != domain.StateNurturing {
		return out, nil
	}

	event, err := e.oracle.CheckBooking(ctx, lead.Email, lead.EnteredAt)
	if err != nil {
		e.log.Warn("booking check failed during sweep",
			"lead_id", lead.ID, "error", err.Error())
	} else if event != nil {
		if err := e.confirmBooking(ctx, lead, event); err != nil {
			return out, err
		}
		out.bookingsDetected++
		return out, nil
	}

	nextStep := lead.SequenceCursor + 1

	if domain.IsSequenceExhausted(nextStep) {
		if err := e.transition(ctx, lead, domain.StateSequenceComplete, "sequence exhausted"); err != nil {
			return out, err
		}
		e.escalate(ctx, lead, "sequence complete without conversion")
		out.escalations++

		if e.bus != nil {
			e.bus.Publish(ctx, events.SequenceCompleted{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    lead.ID,
			})
		}
		return out, nil
	}

	// The call policy runs independently of the email schedule; a lead
	// can warrant a call while its next email is still days away.
	if e.maybeTriggerCallLocked(ctx, lead) {
		return out, nil
	}

	if !e.cadence.IsDue(e.now(), lead.LastStepSentAt, nextStep) {
		return out, nil
	}

	if err := e.sendSequenceStep(ctx, lead, nextStep); err != nil {
		return out, err
	}
	out.emailsSent++

	// Midpoint check-in so the operator can intervene before the
	// sequence runs dry.
	if nextStep == 4 {
		e.notifier.Notify(ctx,
			fmt.Sprintf("lead reached sequence midpoint (step %d) without replying", nextStep),
			leadRef(lead))
	}

	return out, nil
}

// maybeTriggerCallLocked evaluates the call policy for a lead already
// held by the caller's run guard. It reports whether the lead left the
// nurturing state, in which case the sweep must stop touching it.
func (e *Engine) maybeTriggerCallLocked(ctx context.Context, lead *crm.Lead) bool {
	eligibility := domain.CallEligibility{
		LeadType:  lead.LeadType,
		Priority:  lead.Priority,
		Cursor:    lead.SequenceCursor,
		HasBooked: lead.Booking != nil,
	}
	exchanges := e.recentExchangeBodies(ctx, lead.ID)
	if !domain.ShouldTriggerCall(eligibility, exchanges) {
		return false
	}

	reason := domain.DetermineCallReason(exchanges)
	if err := e.placeCall(ctx, lead, reason); err != nil {
		e.log.Error("call placement failed", "lead_id", lead.ID, "error", err.Error())
	}
	return lead.State != domain.StateNurturing
}
