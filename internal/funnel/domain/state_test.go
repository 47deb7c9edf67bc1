package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"new lead enters nurture", StateNew, StateNurturing, true},
		{"new lead booked immediately", StateNew, StateBooked, true},
		{"nurturing lead replies", StateNurturing, StateEngaged, true},
		{"nurturing lead books", StateNurturing, StateBooked, true},
		{"nurturing lead escalates to call", StateNurturing, StateCalling, true},
		{"sequence runs out", StateNurturing, StateSequenceComplete, true},
		{"nurturing lead opts out", StateNurturing, StateClosedLost, true},
		{"engaged lead books", StateEngaged, StateBooked, true},
		{"engaged lead gets a call", StateEngaged, StateCalling, true},
		{"exhausted lead gets a call", StateSequenceComplete, StateCalling, true},
		{"exhausted lead books late", StateSequenceComplete, StateBooked, true},
		{"call ends in booking", StateCalling, StateCallBooked, true},
		{"call ends badly", StateCalling, StateClosedLost, true},
		{"call resumes nurture", StateCalling, StateNurturing, true},
		{"booked lead cannot regress", StateBooked, StateNurturing, false},
		{"closed lead cannot re-enter", StateClosedLost, StateNurturing, false},
		{"call booked is final", StateCallBooked, StateCalling, false},
		{"new lead cannot skip to engaged", StateNew, StateEngaged, false},
		{"nurturing cannot jump to call booked", StateNurturing, StateCallBooked, false},
		{"unknown source state", State("BOGUS"), StateNurturing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsNurtureTerminal(t *testing.T) {
	terminal := []State{StateBooked, StateCallBooked, StateClosedLost, StateSequenceComplete}
	for _, s := range terminal {
		if !IsNurtureTerminal(s) {
			t.Errorf("expected %s to be nurture-terminal", s)
		}
	}

	active := []State{StateNew, StateNurturing, StateEngaged, StateCalling}
	for _, s := range active {
		if IsNurtureTerminal(s) {
			t.Errorf("expected %s to remain active", s)
		}
	}
}

func TestEveryTransitionTargetIsKnown(t *testing.T) {
	for from, targets := range transitions {
		if !IsKnownState(from) {
			t.Errorf("transition source %s is not a known state", from)
		}
		for to := range targets {
			if !IsKnownState(to) {
				t.Errorf("transition target %s from %s is not a known state", to, from)
			}
		}
	}
}
