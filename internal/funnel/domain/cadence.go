package domain

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// SequenceLength is the number of steps in the nurture sequence.
const SequenceLength = 8

// defaultOffsets maps sequence step (1-based) to the day offset from the
// previous send. Step 1 fires immediately.
var defaultOffsets = map[int]int{
	1: 0,
	2: 3,
	3: 7,
	4: 10,
	5: 14,
	6: 17,
	7: 21,
	8: 28,
}

var defaultSubjects = map[int]string{
	1: "Welcome aboard - here's what happens next",
	2: "Three ways teams like yours get started",
	3: "Your personalized getting-started report",
	4: "Quick check-in - any questions so far?",
	5: "What results look like after 30 days",
	6: "A customer story worth two minutes",
	7: "Your tailored growth report",
	8: "Last note from us - the door stays open",
}

// reportSteps are the sequence steps whose email carries a personalized report.
var reportSteps = map[int]bool{3: true, 5: true, 7: true}

// Cadence is the nurture send schedule. The zero value is not usable;
// construct with DefaultCadence or LoadCadence.
type Cadence struct {
	offsets  map[int]int
	subjects map[int]string
}

// DefaultCadence returns the built-in eight-step schedule.
func DefaultCadence() *Cadence {
	return &Cadence{offsets: defaultOffsets, subjects: defaultSubjects}
}

type cadenceFile struct {
	Steps []struct {
		Step      int    `yaml:"step"`
		OffsetDay int    `yaml:"offset_day"`
		Subject   string `yaml:"subject"`
	} `yaml:"steps"`
}

// LoadCadence reads a YAML override file. An empty path returns the
// default schedule. The file must define every step exactly once with
// non-decreasing offsets.
func LoadCadence(path string) (*Cadence, error) {
	if path == "" {
		return DefaultCadence(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cadence file: %w", err)
	}

	var parsed cadenceFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse cadence file: %w", err)
	}
	if len(parsed.Steps) != SequenceLength {
		return nil, fmt.Errorf("cadence file must define %d steps, got %d", SequenceLength, len(parsed.Steps))
	}

	offsets := make(map[int]int, SequenceLength)
	subjects := make(map[int]string, SequenceLength)
	for _, step := range parsed.Steps {
		if step.Step < 1 || step.Step > SequenceLength {
			return nil, fmt.Errorf("cadence step %d out of range", step.Step)
		}
		if _, dup := offsets[step.Step]; dup {
			return nil, fmt.Errorf("cadence step %d defined twice", step.Step)
		}
		if step.OffsetDay < 0 {
			return nil, fmt.Errorf("cadence step %d has negative offset", step.Step)
		}
		offsets[step.Step] = step.OffsetDay
		if step.Subject != "" {
			subjects[step.Step] = step.Subject
		} else {
			subjects[step.Step] = defaultSubjects[step.Step]
		}
	}

	days := make([]int, 0, SequenceLength)
	for step := 1; step <= SequenceLength; step++ {
		days = append(days, offsets[step])
	}
	if !sort.IntsAreSorted(days) {
		return nil, fmt.Errorf("cadence offsets must be non-decreasing")
	}

	return &Cadence{offsets: offsets, subjects: subjects}, nil
}

// DueAt returns the UTC time at which the given step becomes sendable,
// counted from the previous send. The second return is false for steps
// beyond the sequence.
func (c *Cadence) DueAt(lastSent time.Time, step int) (time.Time, bool) {
	offset, ok := c.offsets[step]
	if !ok {
		return time.Time{}, false
	}
	return lastSent.UTC().AddDate(0, 0, offset), true
}

// IsDue reports whether the given step is ready to send. A lead with no
// prior send is immediately due for its first step; otherwise the step
// becomes due when its offset has elapsed since the last send. Steps
// beyond the sequence are never due.
func (c *Cadence) IsDue(now time.Time, lastSent *time.Time, step int) bool {
	if _, ok := c.offsets[step]; !ok {
		return false
	}
	if lastSent == nil {
		return true
	}
	due, _ := c.DueAt(*lastSent, step)
	return !now.UTC().Before(due)
}

// Subject returns the email subject for a step.
func (c *Cadence) Subject(step int) string {
	return c.subjects[step]
}

// IsReportStep reports whether the step's email includes a personalized report.
func IsReportStep(step int) bool {
	return reportSteps[step]
}

// IsSequenceExhausted reports whether the cursor has moved past the final step.
func IsSequenceExhausted(step int) bool {
	return step > SequenceLength
}
