// Package funnel orchestrates the lead lifecycle: intake, the nurture
// sequence, inbound message routing, call triggering, and the periodic
// sweep. All state lives in the record store; the engine re-reads a
// lead before every decision and holds no cache across operations.
package funnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leadfunnel_backend/internal/analyzer"
	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/channels"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/internal/notify"
	"leadfunnel_backend/internal/reports"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"
)

// historyWindow is how many recent exchanges the analyzer sees.
const historyWindow = 10

// ReportGenerator produces the report HTML embedded in report-step
// emails. Satisfied by reports.Generator.
type ReportGenerator interface {
	Generate(ctx context.Context, subject reports.Subject, step int) (string, error)
}

// Engine coordinates all funnel operations against the injected ports.
type Engine struct {
	store       crm.RecordStore
	oracle      booking.Oracle
	email       channels.EmailSender
	sms         channels.SMSSender
	voice       channels.VoiceCaller
	analyzer    analyzer.Analyzer
	notifier    notify.Notifier
	reports     ReportGenerator
	cadence     *domain.Cadence
	bus         events.Bus
	log         *logger.Logger
	bookingLink string

	// now is swappable for tests.
	now func() time.Time

	// activeRuns prevents concurrent processing of the same lead
	// within this process.
	runsMu     sync.Mutex
	activeRuns map[string]bool
}

// Config wires the engine's dependencies.
type Config struct {
	Store       crm.RecordStore
	Oracle      booking.Oracle
	Email       channels.EmailSender
	SMS         channels.SMSSender
	Voice       channels.VoiceCaller
	Analyzer    analyzer.Analyzer
	Notifier    notify.Notifier
	Reports     ReportGenerator
	Cadence     *domain.Cadence
	Bus         events.Bus
	Logger      *logger.Logger
	BookingLink string
}

// New creates the engine. Optional ports fall back to noops.
func New(cfg Config) *Engine {
	if cfg.Oracle == nil {
		cfg.Oracle = booking.NoopOracle{}
	}
	if cfg.Email == nil {
		cfg.Email = channels.NoopEmailSender{}
	}
	if cfg.SMS == nil {
		cfg.SMS = channels.NoopSMSSender{}
	}
	if cfg.Voice == nil {
		cfg.Voice = channels.NoopVoiceCaller{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	if cfg.Cadence == nil {
		cfg.Cadence = domain.DefaultCadence()
	}

	return &Engine{
		store:       cfg.Store,
		oracle:      cfg.Oracle,
		email:       cfg.Email,
		sms:         cfg.SMS,
		voice:       cfg.Voice,
		analyzer:    cfg.Analyzer,
		notifier:    cfg.Notifier,
		reports:     cfg.Reports,
		cadence:     cfg.Cadence,
		bus:         cfg.Bus,
		log:         cfg.Logger,
		bookingLink: cfg.BookingLink,
		now:         time.Now,
		activeRuns:  make(map[string]bool),
	}
}

// markRunning attempts to mark a lead operation as active. Returns
// false if the lead is already being processed.
func (e *Engine) markRunning(operation, leadID string) bool {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()

	k := key(operation, leadID)
	if e.activeRuns[k] {
		return false
	}
	e.activeRuns[k] = true
	return true
}

// markComplete removes the active run marker.
func (e *Engine) markComplete(operation, leadID string) {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()

	delete(e.activeRuns, key(operation, leadID))
}

func key(operation, leadID string) string {
	return operation + ":" + leadID
}

// transition validates and applies a state change. The state write and
// the activity land as one logical step via the record store.
func (e *Engine) transition(ctx context.Context, lead *crm.Lead, to domain.State, reason string) error {
	from := lead.State
	if !domain.CanTransition(from, to) {
		return apperr.New(apperr.KindConflict,
			fmt.Sprintf("invalid transition %s -> %s", from, to)).WithOp("funnel.transition")
	}

	activity := crm.Activity{
		Kind:      crm.ActivityStateChange,
		Note:      fmt.Sprintf("%s -> %s: %s", from, to, reason),
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.UpdateState(ctx, lead.ID, to, activity); err != nil {
		return err
	}

	lead.State = to
	e.log.StateChange(lead.ID, string(from), string(to), reason)

	if e.bus != nil {
		e.bus.Publish(ctx, events.LeadStateChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			FromState: string(from),
			ToState:   string(to),
			Reason:    reason,
		})
	}

	return nil
}

// escalate notifies the operator channel and records the escalation on
// the lead timeline. Never returns an error; the notification sink is
// best-effort, and an activity append failure is surfaced in the log.
func (e *Engine) escalate(ctx context.Context, lead *crm.Lead, reason string) {
	e.notifier.Notify(ctx, "escalation: "+reason, leadRef(lead))

	activity := crm.Activity{
		LeadID:    lead.ID,
		Kind:      crm.ActivityEscalation,
		Note:      reason,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.AppendActivity(ctx, activity); err != nil {
		e.log.Error("escalation activity append failed", "lead_id", lead.ID, "error", err.Error())
	}

	if e.bus != nil {
		e.bus.Publish(ctx, events.EscalationRaised{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Reason:    reason,
		})
	}
}

func leadRef(lead *crm.Lead) *notify.LeadRef {
	return &notify.LeadRef{
		ID:       lead.ID,
		Name:     lead.Name,
		Company:  lead.Company,
		State:    string(lead.State),
		Priority: string(lead.Priority),
	}
}

// recentExchangeBodies returns the bodies of the lead's recent message
// activities, oldest first.
func (e *Engine) recentExchangeBodies(ctx context.Context, leadID string) []string {
	activities, err := e.store.RecentActivities(ctx, leadID, historyWindow)
	if err != nil {
		e.log.Warn("history fetch failed", "lead_id", leadID, "error", err.Error())
		return nil
	}

	bodies := make([]string, 0, len(activities))
	for _, activity := range activities {
		if activity.Kind == crm.ActivityMessage {
			bodies = append(bodies, activity.Note)
		}
	}
	return bodies
}
