package reports

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/platform/logger"
)

func newTestGenerator() *Generator {
	return NewGenerator(nil, "", nil, logger.New("development"))
}

// fakeModel yields one scripted response or error.
type fakeModel struct {
	text string
	err  error
}

func (f *fakeModel) GenerateContent(_ context.Context, _ *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{genai.NewPartFromText(f.text)},
			},
		}, nil)
	}
}

func TestGenerateNonReportStep(t *testing.T) {
	g := newTestGenerator()
	html, err := g.Generate(context.Background(), Subject{LeadType: domain.LeadTypeConnect}, 2)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if html != "" {
		t.Error("expected no report for a non-report step")
	}
}

func TestGeneratePerLeadType(t *testing.T) {
	g := newTestGenerator()

	tests := []struct {
		leadType domain.LeadType
		step     int
		want     string
	}{
		{domain.LeadTypeConnect, 3, "Getting Started Playbook"},
		{domain.LeadTypeConnect, 7, "Growth Roadmap"},
		{domain.LeadTypeWholesale, 3, "Volume Pricing Overview"},
		{domain.LeadTypeWholesale, 5, "Fulfillment"},
		{domain.LeadTypeAffiliate, 5, "Top Performer Tactics"},
	}

	for _, tt := range tests {
		html, err := g.Generate(context.Background(), Subject{LeadType: tt.leadType}, tt.step)
		if err != nil {
			t.Fatalf("Generate(%s, %d) returned error: %v", tt.leadType, tt.step, err)
		}
		if !strings.Contains(html, tt.want) {
			t.Errorf("Generate(%s, %d) missing %q", tt.leadType, tt.step, tt.want)
		}
	}
}

func TestGeneratePersonalization(t *testing.T) {
	g := newTestGenerator()
	subject := Subject{
		LeadType: domain.LeadTypeConnect,
		Company:  "Acme Co",
		Goals:    "double output this year",
	}

	html, err := g.Generate(context.Background(), subject, 3)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !strings.Contains(html, "Acme Co") {
		t.Error("expected company name in report")
	}
	if !strings.Contains(html, "double output this year") {
		t.Error("expected goals echoed in report")
	}
}

func TestGenerateModelWritesBody(t *testing.T) {
	g := NewGenerator(nil, "", &fakeModel{
		text: "You told us you want to double output.\n\nHere is how teams like yours get there.",
	}, logger.New("development"))

	html, err := g.Generate(context.Background(), Subject{
		LeadType: domain.LeadTypeConnect,
		Name:     "Ada",
		Goals:    "double output this year",
	}, 3)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !strings.Contains(html, "Getting Started Playbook") {
		t.Error("expected report title to survive personalization")
	}
	if !strings.Contains(html, "double output") {
		t.Error("expected model text in report body")
	}
	if strings.Contains(html, "The three workflows most teams automate first") {
		t.Error("expected template blurb to be replaced by model text")
	}
}

func TestGenerateModelFailureFallsBackToTemplate(t *testing.T) {
	g := NewGenerator(nil, "", &fakeModel{err: errors.New("model unavailable")}, logger.New("development"))

	html, err := g.Generate(context.Background(), Subject{LeadType: domain.LeadTypeWholesale}, 5)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !strings.Contains(html, "Fulfillment") {
		t.Error("expected template report when the model fails")
	}
}

func TestGenerateModelOutputIsEscaped(t *testing.T) {
	g := NewGenerator(nil, "", &fakeModel{text: "<script>alert(1)</script>"}, logger.New("development"))

	html, err := g.Generate(context.Background(), Subject{LeadType: domain.LeadTypeConnect}, 3)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("expected model output to be HTML-escaped")
	}
}

func TestGenerateUnknownLeadTypeFallsBack(t *testing.T) {
	g := newTestGenerator()
	html, err := g.Generate(context.Background(), Subject{LeadType: domain.LeadType("mystery")}, 3)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !strings.Contains(html, "Getting Started Playbook") {
		t.Error("expected connect report for unknown lead type")
	}
}
