package funnel

import (
	"context"
	"strings"
	"testing"

	"leadfunnel_backend/internal/funnel/domain"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		want    Command
		wantErr bool
	}{
		{
			input: "status jamie@example.com",
			want:  Command{Kind: CommandStatus, Email: "jamie@example.com"},
		},
		{
			input: "status Jamie@Example.com",
			want:  Command{Kind: CommandStatus, Email: "jamie@example.com"},
		},
		{
			input: "leads nurturing",
			want:  Command{Kind: CommandListLeads, State: domain.StateNurturing},
		},
		{
			input: "send email to jamie@example.com step 3",
			want:  Command{Kind: CommandSendStep, Email: "jamie@example.com", Step: 3},
		},
		{
			input: "update lead jamie@example.com state CLOSED_LOST",
			want:  Command{Kind: CommandUpdateState, Email: "jamie@example.com", State: domain.StateClosedLost},
		},
		{input: "", wantErr: true},
		{input: "status", wantErr: true},
		{input: "leads limbo", wantErr: true},
		{input: "send email to x@y.com step 9", wantErr: true},
		{input: "send email to x@y.com step zero", wantErr: true},
		{input: "update lead x@y.com state GONE", wantErr: true},
		{input: "frobnicate everything", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected parse error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestExecuteCommandStatus(t *testing.T) {
	te := newTestEngine()
	te.seedLead(nurturingLead("jamie@example.com", 3, 10))

	out, err := te.ExecuteCommand(context.Background(), Command{
		Kind: CommandStatus, Email: "jamie@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "NURTURING") || !strings.Contains(out, "step 3/8") {
		t.Errorf("unexpected status output: %q", out)
	}
}

func TestExecuteCommandListLeads(t *testing.T) {
	te := newTestEngine()
	te.seedLead(nurturingLead("a@example.com", 1, 1))
	te.seedLead(nurturingLead("b@example.com", 2, 4))

	out, err := te.ExecuteCommand(context.Background(), Command{
		Kind: CommandListLeads, State: domain.StateNurturing,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "a@example.com") || !strings.Contains(out, "b@example.com") {
		t.Errorf("expected both leads listed, got %q", out)
	}

	out, err = te.ExecuteCommand(context.Background(), Command{
		Kind: CommandListLeads, State: domain.StateBooked,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "no leads") {
		t.Errorf("expected empty message, got %q", out)
	}
}

func TestExecuteCommandSendStep(t *testing.T) {
	te := newTestEngine()
	te.seedLead(nurturingLead("resend@example.com", 2, 7))

	out, err := te.ExecuteCommand(context.Background(), Command{
		Kind: CommandSendStep, Email: "resend@example.com", Step: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "step 3 sent") {
		t.Errorf("unexpected output: %q", out)
	}
	if te.email.count() != 1 {
		t.Errorf("expected 1 email sent, got %d", te.email.count())
	}
}

func TestExecuteCommandSendStepTerminalState(t *testing.T) {
	te := newTestEngine()
	lead := nurturingLead("closed@example.com", 2, 7)
	lead.State = domain.StateClosedLost
	te.seedLead(lead)

	_, err := te.ExecuteCommand(context.Background(), Command{
		Kind: CommandSendStep, Email: "closed@example.com", Step: 3,
	})
	if err == nil {
		t.Fatal("expected conflict for terminal-state lead")
	}
}

func TestExecuteCommandUpdateState(t *testing.T) {
	te := newTestEngine()
	lead := te.seedLead(nurturingLead("override@example.com", 1, 2))

	out, err := te.ExecuteCommand(context.Background(), Command{
		Kind: CommandUpdateState, Email: "override@example.com", State: domain.StateClosedLost,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "CLOSED_LOST") {
		t.Errorf("unexpected output: %q", out)
	}
	if got := te.store.mustGet(lead.ID).State; got != domain.StateClosedLost {
		t.Errorf("expected CLOSED_LOST, got %s", got)
	}
}

func TestExecuteCommandUpdateStateInvalidTransition(t *testing.T) {
	te := newTestEngine()
	lead := nurturingLead("frozen@example.com", 1, 2)
	lead.State = domain.StateClosedLost
	te.seedLead(lead)

	_, err := te.ExecuteCommand(context.Background(), Command{
		Kind: CommandUpdateState, Email: "frozen@example.com", State: domain.StateNurturing,
	})
	if err == nil {
		t.Fatal("expected invalid transition error")
	}
}
