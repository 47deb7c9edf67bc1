package funnel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/platform/apperr"
)

// CommandKind names an operator command.
type CommandKind string

const (
	CommandStatus      CommandKind = "status"
	CommandListLeads   CommandKind = "leads"
	CommandSendStep    CommandKind = "send_step"
	CommandUpdateState CommandKind = "update_state"
)

// Command is a parsed operator instruction.
type Command struct {
	Kind  CommandKind
	Email string
	State domain.State
	Step  int
}

// ParseCommand parses the operator command grammar:
//
//	status <email>
//	leads <state>
//	send email to <email> step <n>
//	update lead <email> state <state>
func ParseCommand(input string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return Command{}, apperr.New(apperr.KindValidation, "empty command")
	}

	switch strings.ToLower(fields[0]) {
	case "status":
		if len(fields) != 2 {
			return Command{}, apperr.New(apperr.KindValidation, "usage: status <email>")
		}
		return Command{Kind: CommandStatus, Email: strings.ToLower(fields[1])}, nil

	case "leads":
		if len(fields) != 2 {
			return Command{}, apperr.New(apperr.KindValidation, "usage: leads <state>")
		}
		state := domain.State(strings.ToUpper(fields[1]))
		if !domain.IsKnownState(state) {
			return Command{}, apperr.New(apperr.KindValidation, "unknown state "+fields[1])
		}
		return Command{Kind: CommandListLeads, State: state}, nil

	case "send":
		// send email to <email> step <n>
		if len(fields) != 6 ||
			!strings.EqualFold(fields[1], "email") ||
			!strings.EqualFold(fields[2], "to") ||
			!strings.EqualFold(fields[4], "step") {
			return Command{}, apperr.New(apperr.KindValidation, "usage: send email to <email> step <n>")
		}
		step, err := strconv.Atoi(fields[5])
		if err != nil || step < 1 || step > domain.SequenceLength {
			return Command{}, apperr.New(apperr.KindValidation,
				fmt.Sprintf("step must be 1-%d", domain.SequenceLength))
		}
		return Command{Kind: CommandSendStep, Email: strings.ToLower(fields[3]), Step: step}, nil

	case "update":
		// update lead <email> state <state>
		if len(fields) != 5 ||
			!strings.EqualFold(fields[1], "lead") ||
			!strings.EqualFold(fields[3], "state") {
			return Command{}, apperr.New(apperr.KindValidation, "usage: update lead <email> state <state>")
		}
		state := domain.State(strings.ToUpper(fields[4]))
		if !domain.IsKnownState(state) {
			return Command{}, apperr.New(apperr.KindValidation, "unknown state "+fields[4])
		}
		return Command{Kind: CommandUpdateState, Email: strings.ToLower(fields[2]), State: state}, nil
	}

	return Command{}, apperr.New(apperr.KindValidation, "unknown command "+fields[0])
}

// ExecuteCommand runs a parsed operator command and returns a
// human-readable result.
func (e *Engine) ExecuteCommand(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Kind {
	case CommandStatus:
		lead, err := e.store.FindByEmail(ctx, cmd.Email)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s | %s | %s priority | state %s | step %d/%d",
			lead.Name, string(lead.LeadType), string(lead.Priority),
			string(lead.State), lead.SequenceCursor, domain.SequenceLength), nil

	case CommandListLeads:
		leads, err := e.store.ListByState(ctx, cmd.State)
		if err != nil {
			return "", err
		}
		if len(leads) == 0 {
			return "no leads in " + string(cmd.State), nil
		}
		lines := make([]string, 0, len(leads))
		for _, lead := range leads {
			lines = append(lines, fmt.Sprintf("%s <%s> step %d", lead.Name, lead.Email, lead.SequenceCursor))
		}
		return strings.Join(lines, "\n"), nil

	case CommandSendStep:
		lead, err := e.store.FindByEmail(ctx, cmd.Email)
		if err != nil {
			return "", err
		}
		if domain.IsNurtureTerminal(lead.State) {
			return "", apperr.New(apperr.KindConflict,
				"lead is in terminal state "+string(lead.State))
		}
		if err := e.sendSequenceStep(ctx, lead, cmd.Step); err != nil {
			return "", err
		}
		return fmt.Sprintf("step %d sent to %s", cmd.Step, cmd.Email), nil

	case CommandUpdateState:
		lead, err := e.store.FindByEmail(ctx, cmd.Email)
		if err != nil {
			return "", err
		}
		if err := e.transition(ctx, lead, cmd.State, "operator override"); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s moved to %s", cmd.Email, string(cmd.State)), nil
	}

	return "", apperr.New(apperr.KindValidation, "unknown command kind")
}
