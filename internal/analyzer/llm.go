package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"

	"leadfunnel_backend/platform/ai/moonshot"
	"leadfunnel_backend/platform/logger"
)

// LLMAnalyzer classifies messages with an LLM agent that must call the
// SaveClassification tool. If the tool is never called, or its payload
// is unusable, the analyzer falls back to the safe default.
type LLMAnalyzer struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
	log            *logger.Logger
	capture        *classificationCapture
	runMu          sync.Mutex
}

// classificationCapture collects the tool call from the current run.
type classificationCapture struct {
	mu     sync.Mutex
	result *Classification
}

func (c *classificationCapture) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = nil
}

func (c *classificationCapture) set(result Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = &result
}

func (c *classificationCapture) get() (Classification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Classification{}, false
	}
	return *c.result, true
}

// SaveClassificationInput is the tool payload the agent must produce.
type SaveClassificationInput struct {
	Intent         string   `json:"intent"`
	Sentiment      string   `json:"sentiment"`
	Qualification  string   `json:"qualification"`
	KeyConcerns    []string `json:"key_concerns,omitempty"`
	ShouldEscalate bool     `json:"should_escalate"`
	EscalateReason string   `json:"escalate_reason,omitempty"`
	SuggestedReply string   `json:"suggested_reply,omitempty"`
	ShouldBookCall bool     `json:"should_book_call"`
	NextAction     string   `json:"next_action"`
}

// SaveClassificationOutput acknowledges the tool call.
type SaveClassificationOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// NewLLMAnalyzer builds the classifier agent.
func NewLLMAnalyzer(apiKey string, log *logger.Logger) (*LLMAnalyzer, error) {
	kimi := moonshot.NewModel(moonshot.Config{
		APIKey:          apiKey,
		Model:           "kimi-k2.5",
		DisableThinking: true,
	})

	capture := &classificationCapture{}

	saveTool, err := functiontool.New(functiontool.Config{
		Name:        "SaveClassification",
		Description: "Saves the final classification of the inbound message. Call this exactly once with your complete verdict.",
	}, func(ctx tool.Context, input SaveClassificationInput) (SaveClassificationOutput, error) {
		classification, err := classificationFromInput(input)
		if err != nil {
			return SaveClassificationOutput{Success: false, Message: err.Error()}, err
		}
		capture.set(classification)
		return SaveClassificationOutput{Success: true}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build SaveClassification tool: %w", err)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "MessageClassifier",
		Model:       kimi,
		Description: "Classifies inbound lead messages and recommends the next action.",
		Instruction: classifierInstruction,
		Tools:       []tool.Tool{saveTool},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        "classifier",
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier runner: %w", err)
	}

	return &LLMAnalyzer{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
		appName:        "classifier",
		log:            log,
		capture:        capture,
	}, nil
}

// Analyze runs the classifier agent. It never returns an error for
// model or transport failures; those yield the safe default.
func (a *LLMAnalyzer) Analyze(ctx context.Context, msg Message, lead LeadContext, history []HistoryEntry) (Classification, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.capture.reset()

	prompt := buildClassificationPrompt(msg, lead, history)
	if err := a.runWithPrompt(ctx, prompt); err != nil {
		a.log.Warn("classifier run failed, using safe default", "error", err.Error())
		return SafeDefault("classifier unavailable"), nil
	}

	classification, ok := a.capture.get()
	if !ok {
		a.log.Warn("classifier never called SaveClassification, using safe default")
		return SafeDefault("classifier produced no verdict"), nil
	}

	return classification, nil
}

func (a *LLMAnalyzer) runWithPrompt(ctx context.Context, promptText string) error {
	sessionID := uuid.New().String()
	userID := "classifier"

	_, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   a.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to create classifier session: %w", err)
	}
	defer func() {
		_ = a.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   a.appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: promptText}},
	}

	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}
	for event := range a.runner.Run(ctx, userID, sessionID, userMessage, runConfig) {
		_ = event
	}

	return nil
}

func classificationFromInput(input SaveClassificationInput) (Classification, error) {
	action := NextAction(strings.ToLower(strings.TrimSpace(input.NextAction)))
	switch action {
	case ActionRespond, ActionBook, ActionEscalate, ActionClose, ActionNone:
	default:
		return Classification{}, fmt.Errorf("unrecognized next_action %q", input.NextAction)
	}

	if action == ActionRespond && strings.TrimSpace(input.SuggestedReply) == "" {
		return Classification{}, fmt.Errorf("respond action requires a suggested_reply")
	}

	return Classification{
		Intent:         input.Intent,
		Sentiment:      input.Sentiment,
		Qualification:  input.Qualification,
		KeyConcerns:    input.KeyConcerns,
		ShouldEscalate: input.ShouldEscalate || action == ActionEscalate,
		EscalateReason: input.EscalateReason,
		SuggestedReply: input.SuggestedReply,
		ShouldBookCall: input.ShouldBookCall || action == ActionBook,
		NextAction:     action,
	}, nil
}
