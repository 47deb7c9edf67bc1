package domain

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCadenceIsDue(t *testing.T) {
	cadence := DefaultCadence()
	lastSent := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	// A send moments ago, however old the lead is.
	justSent := lastSent.AddDate(0, 0, 30).Add(-time.Minute)

	tests := []struct {
		name     string
		now      time.Time
		lastSent *time.Time
		step     int
		want     bool
	}{
		{"step one with no prior send is due immediately", lastSent, nil, 1, true},
		{"any step with no prior send is due immediately", lastSent, nil, 5, true},
		{"step two before three days since last send", lastSent.AddDate(0, 0, 2), &lastSent, 2, false},
		{"step two one minute before the boundary", lastSent.AddDate(0, 0, 3).Add(-time.Minute), &lastSent, 2, false},
		{"step two exactly three days after last send", lastSent.AddDate(0, 0, 3), &lastSent, 2, true},
		{"step five fourteen days after last send", lastSent.AddDate(0, 0, 14), &lastSent, 5, true},
		{"step eight twenty-seven days after last send", lastSent.AddDate(0, 0, 27), &lastSent, 8, false},
		{"step eight twenty-eight days after last send", lastSent.AddDate(0, 0, 28), &lastSent, 8, true},
		{"fresh send restarts the clock for an old lead", lastSent.AddDate(0, 0, 30), &justSent, 2, false},
		{"step beyond sequence never due", lastSent.AddDate(0, 1, 0), &lastSent, 9, false},
		{"step beyond sequence never due without prior send", lastSent, nil, 9, false},
		{"step zero never due", lastSent, &lastSent, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cadence.IsDue(tt.now, tt.lastSent, tt.step); got != tt.want {
				t.Errorf("IsDue step %d = %v, want %v", tt.step, got, tt.want)
			}
		})
	}
}

func TestCadenceIsDueNormalizesToUTC(t *testing.T) {
	cadence := DefaultCadence()
	est := time.FixedZone("EST", -5*60*60)
	lastSent := time.Date(2026, 3, 1, 22, 0, 0, 0, est)

	// 2026-03-04 03:00 UTC is exactly three days after the last send in UTC.
	now := time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC)
	if !cadence.IsDue(now, &lastSent, 2) {
		t.Error("expected step 2 due exactly three days after the UTC send time")
	}
	if cadence.IsDue(now.Add(-time.Minute), &lastSent, 2) {
		t.Error("expected step 2 not due one minute before the offset")
	}
}

func TestIsReportStep(t *testing.T) {
	want := map[int]bool{1: false, 2: false, 3: true, 4: false, 5: true, 6: false, 7: true, 8: false}
	for step, expected := range want {
		if got := IsReportStep(step); got != expected {
			t.Errorf("IsReportStep(%d) = %v, want %v", step, got, expected)
		}
	}
}

func TestIsSequenceExhausted(t *testing.T) {
	if IsSequenceExhausted(8) {
		t.Error("step 8 is still within the sequence")
	}
	if !IsSequenceExhausted(9) {
		t.Error("step 9 is past the sequence")
	}
}

func TestLoadCadenceOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cadence.yaml")
	content := `steps:
  - {step: 1, offset_day: 0, subject: "Hello"}
  - {step: 2, offset_day: 1}
  - {step: 3, offset_day: 2}
  - {step: 4, offset_day: 4}
  - {step: 5, offset_day: 6}
  - {step: 6, offset_day: 8}
  - {step: 7, offset_day: 10}
  - {step: 8, offset_day: 14}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write cadence file: %v", err)
	}

	cadence, err := LoadCadence(path)
	if err != nil {
		t.Fatalf("LoadCadence returned error: %v", err)
	}

	lastSent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !cadence.IsDue(lastSent.AddDate(0, 0, 1), &lastSent, 2) {
		t.Error("expected overridden step 2 due one day after the last send")
	}
	if cadence.Subject(1) != "Hello" {
		t.Errorf("expected overridden subject, got %q", cadence.Subject(1))
	}
	if cadence.Subject(2) == "" {
		t.Error("expected default subject fallback for step 2")
	}
}

func TestLoadCadenceRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"missing steps", "steps:\n  - {step: 1, offset_day: 0}\n"},
		{"duplicate step", `steps:
  - {step: 1, offset_day: 0}
  - {step: 1, offset_day: 1}
  - {step: 3, offset_day: 2}
  - {step: 4, offset_day: 4}
  - {step: 5, offset_day: 6}
  - {step: 6, offset_day: 8}
  - {step: 7, offset_day: 10}
  - {step: 8, offset_day: 14}
`},
		{"decreasing offsets", `steps:
  - {step: 1, offset_day: 5}
  - {step: 2, offset_day: 1}
  - {step: 3, offset_day: 2}
  - {step: 4, offset_day: 4}
  - {step: 5, offset_day: 6}
  - {step: 6, offset_day: 8}
  - {step: 7, offset_day: 10}
  - {step: 8, offset_day: 14}
`},
		{"not yaml", "{{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write cadence file: %v", err)
			}
			if _, err := LoadCadence(path); err == nil {
				t.Error("expected error for invalid cadence file")
			}
		})
	}
}

func TestLoadCadenceEmptyPathUsesDefaults(t *testing.T) {
	cadence, err := LoadCadence("")
	if err != nil {
		t.Fatalf("LoadCadence(\"\") returned error: %v", err)
	}
	lastSent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !cadence.IsDue(lastSent.AddDate(0, 0, 7), &lastSent, 3) {
		t.Error("expected default step 3 due seven days after the last send")
	}
}
