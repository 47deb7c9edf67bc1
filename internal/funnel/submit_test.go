package funnel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/funnel/domain"
)

func TestProcessSubmissionStartsNurtureSequence(t *testing.T) {
	te := newTestEngine()

	lead, err := te.ProcessSubmission(context.Background(), domain.Submission{
		ExternalID:  "form-1",
		Email:       "Jamie@Example.com",
		Name:        "Jamie",
		ProductLine: "connect",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lead.State != domain.StateNurturing {
		t.Errorf("expected state NURTURING, got %s", lead.State)
	}
	if lead.Email != "jamie@example.com" {
		t.Errorf("expected lowercased email, got %q", lead.Email)
	}
	if lead.SequenceCursor != 1 {
		t.Errorf("expected cursor 1 after step 1 send, got %d", lead.SequenceCursor)
	}
	if te.email.count() != 1 {
		t.Errorf("expected 1 email sent, got %d", te.email.count())
	}
	if got := te.email.sent[0].Subject; got != te.cadence.Subject(1) {
		t.Errorf("expected step 1 subject %q, got %q", te.cadence.Subject(1), got)
	}
}

func TestProcessSubmissionWithExistingBooking(t *testing.T) {
	te := newTestEngine()
	te.oracle.event = &booking.Event{
		Reference: "evt-42",
		StartsAt:  time.Date(2026, 9, 3, 15, 0, 0, 0, time.UTC),
		Location:  "https://zoom.us/j/123",
	}

	lead, err := te.ProcessSubmission(context.Background(), domain.Submission{
		Email: "booked@example.com",
		Name:  "Booker",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lead.State != domain.StateBooked {
		t.Errorf("expected state BOOKED, got %s", lead.State)
	}
	if lead.SequenceCursor != 0 {
		t.Errorf("expected no sequence sends for booked lead, got cursor %d", lead.SequenceCursor)
	}
	if te.email.count() != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", te.email.count())
	}
	if !strings.Contains(te.email.sent[0].HTMLBody, "zoom.us") {
		t.Errorf("expected confirmation to include location, got %q", te.email.sent[0].HTMLBody)
	}
	if te.notifier.count() != 1 {
		t.Errorf("expected booking notification, got %d", te.notifier.count())
	}
}

func TestProcessSubmissionClassifiesWholesaleHigh(t *testing.T) {
	te := newTestEngine()

	lead, err := te.ProcessSubmission(context.Background(), domain.Submission{
		Email:       "buyer@bigco.com",
		Name:        "Buyer",
		Company:     "BigCo",
		Phone:       "+15551234567",
		ProductLine: "wholesale",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lead.LeadType != domain.LeadTypeWholesale {
		t.Errorf("expected wholesale lead type, got %s", lead.LeadType)
	}
	if lead.Priority != domain.PriorityHigh {
		t.Errorf("expected high priority, got %s", lead.Priority)
	}
}

func TestProcessSubmissionResubmitUpdatesWithoutRestarting(t *testing.T) {
	te := newTestEngine()

	first, err := te.ProcessSubmission(context.Background(), domain.Submission{
		ExternalID: "form-9",
		Email:      "repeat@example.com",
		Name:       "Old Name",
	})
	if err != nil {
		t.Fatalf("first submission: %v", err)
	}

	second, err := te.ProcessSubmission(context.Background(), domain.Submission{
		ExternalID: "form-9",
		Email:      "repeat@example.com",
		Name:       "New Name",
		Company:    "NewCo",
	})
	if err != nil {
		t.Fatalf("second submission: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected resubmission to match lead %s, got %s", first.ID, second.ID)
	}
	if second.Name != "New Name" || second.Company != "NewCo" {
		t.Errorf("expected profile refresh, got name=%q company=%q", second.Name, second.Company)
	}
	if second.SequenceCursor != 1 {
		t.Errorf("expected cursor untouched at 1, got %d", second.SequenceCursor)
	}
	if te.email.count() != 1 {
		t.Errorf("expected no second step 1 send, got %d emails", te.email.count())
	}
}

func TestProcessSubmissionRequiresEmail(t *testing.T) {
	te := newTestEngine()

	_, err := te.ProcessSubmission(context.Background(), domain.Submission{Name: "No Email"})
	if err == nil {
		t.Fatal("expected validation error for missing email")
	}
}

func TestProcessSubmissionBookingCheckFailureFallsBackToNurture(t *testing.T) {
	te := newTestEngine()
	te.oracle.err = errors.New("calendly down")

	lead, err := te.ProcessSubmission(context.Background(), domain.Submission{
		Email: "unlucky@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.State != domain.StateNurturing {
		t.Errorf("expected NURTURING when booking check fails, got %s", lead.State)
	}
}

func TestProcessSubmissionEmailFailureLeavesLeadNurturing(t *testing.T) {
	te := newTestEngine()
	te.email.err = errors.New("smtp refused")

	lead, err := te.ProcessSubmission(context.Background(), domain.Submission{
		Email: "bounce@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.State != domain.StateNurturing {
		t.Errorf("expected NURTURING despite send failure, got %s", lead.State)
	}
	if lead.SequenceCursor != 0 {
		t.Errorf("expected cursor 0 so the sweep retries step 1, got %d", lead.SequenceCursor)
	}
}

func TestSendSequenceStepSurvivesReportFailure(t *testing.T) {
	te := newTestEngine()
	te.now = fixedNow
	te.reports = &fakeReports{err: errors.New("report backend down")}

	lead := te.seedLead(nurturingLead("report@example.com", 2, 7))

	if err := te.sendSequenceStep(context.Background(), te.store.mustGet(lead.ID), 3); err != nil {
		t.Fatalf("expected the send to proceed without the report, got %v", err)
	}

	if te.email.count() != 1 {
		t.Fatalf("expected 1 email sent, got %d", te.email.count())
	}
	if got := te.store.mustGet(lead.ID).SequenceCursor; got != 3 {
		t.Errorf("expected cursor advanced to 3, got %d", got)
	}
}
