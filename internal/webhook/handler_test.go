package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"leadfunnel_backend/internal/analyzer"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/funnel"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type fakeFunnel struct {
	lead       *crm.Lead
	submitErr  error
	inbound    *funnel.InboundResult
	inboundErr error
	callErr    error
	cmdResult  string
	cmdErr     error

	lastSubmission domain.Submission
	lastMessage    analyzer.Message
	lastCallID     string
}

func (f *fakeFunnel) ProcessSubmission(_ context.Context, sub domain.Submission) (*crm.Lead, error) {
	f.lastSubmission = sub
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.lead, nil
}

func (f *fakeFunnel) HandleInbound(_ context.Context, msg analyzer.Message) (*funnel.InboundResult, error) {
	f.lastMessage = msg
	if f.inboundErr != nil {
		return nil, f.inboundErr
	}
	return f.inbound, nil
}

func (f *fakeFunnel) HandleCallEnded(_ context.Context, callID, _, _ string) error {
	f.lastCallID = callID
	return f.callErr
}

func (f *fakeFunnel) ExecuteCommand(context.Context, funnel.Command) (string, error) {
	if f.cmdErr != nil {
		return "", f.cmdErr
	}
	return f.cmdResult, nil
}

func testRouter(svc FunnelService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	handler := NewHandler(svc, validator.New(), logger.New("development"))
	v1 := engine.Group("/api/v1/webhook")
	v1.POST("/forms", handler.HandleFormSubmission)
	v1.POST("/email", handler.HandleInboundEmail)
	v1.POST("/sms", handler.HandleInboundSMS)
	v1.POST("/voice", handler.HandleCallEnded)
	v1.POST("/commands", handler.HandleCommand)
	return engine
}

func postJSON(t *testing.T, engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, engine *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleFormSubmission(t *testing.T) {
	svc := &fakeFunnel{lead: &crm.Lead{
		ID:       "lead-1",
		State:    domain.StateNurturing,
		LeadType: domain.LeadTypeWholesale,
		Priority: domain.PriorityHigh,
	}}
	engine := testRouter(svc)

	rec := postJSON(t, engine, "/api/v1/webhook/forms",
		`{"email":"buyer@bigco.com","name":"Buyer","productLine":"wholesale"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp FormSubmissionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.LeadID != "lead-1" || resp.State != "NURTURING" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if svc.lastSubmission.Email != "buyer@bigco.com" {
		t.Errorf("expected submission forwarded, got %+v", svc.lastSubmission)
	}
}

func TestHandleFormSubmissionValidation(t *testing.T) {
	engine := testRouter(&fakeFunnel{})

	rec := postJSON(t, engine, "/api/v1/webhook/forms", `{"name":"No Email"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing email, got %d", rec.Code)
	}

	rec = postJSON(t, engine, "/api/v1/webhook/forms", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestHandleFormSubmissionConflict(t *testing.T) {
	svc := &fakeFunnel{submitErr: apperr.New(apperr.KindConflict, "lead is being processed")}
	engine := testRouter(svc)

	rec := postJSON(t, engine, "/api/v1/webhook/forms", `{"email":"x@y.com"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestHandleInboundEmail(t *testing.T) {
	svc := &fakeFunnel{inbound: &funnel.InboundResult{LeadID: "lead-2", Action: analyzer.ActionRespond}}
	engine := testRouter(svc)

	rec := postForm(t, engine, "/api/v1/webhook/email", url.Values{
		"from": {"jamie@example.com"},
		"text": {"tell me more"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastMessage.Channel != funnel.ChannelEmail {
		t.Errorf("expected email channel, got %q", svc.lastMessage.Channel)
	}
	if !strings.Contains(rec.Body.String(), "respond") {
		t.Errorf("expected action in response, got %s", rec.Body.String())
	}
}

func TestHandleInboundEmailMissingFrom(t *testing.T) {
	engine := testRouter(&fakeFunnel{})

	rec := postForm(t, engine, "/api/v1/webhook/email", url.Values{"text": {"hi"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleInboundSMSUnknownSenderTwiML(t *testing.T) {
	svc := &fakeFunnel{inbound: &funnel.InboundResult{
		Action: analyzer.ActionEscalate,
		Reply:  "Thanks for reaching out.",
	}}
	engine := testRouter(svc)

	rec := postForm(t, engine, "/api/v1/webhook/sms", url.Values{
		"From": {"+15550001111"},
		"Body": {"hello?"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/xml") {
		t.Errorf("expected text/xml, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Response>") || !strings.Contains(body, "Thanks for reaching out.") {
		t.Errorf("expected TwiML with holding reply, got %s", body)
	}
}

func TestHandleInboundSMSErrorStillReturnsTwiML(t *testing.T) {
	svc := &fakeFunnel{inboundErr: errors.New("store down")}
	engine := testRouter(svc)

	rec := postForm(t, engine, "/api/v1/webhook/sms", url.Values{
		"From": {"+15550001111"},
		"Body": {"hello?"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even on failure, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Response") {
		t.Errorf("expected TwiML envelope, got %s", rec.Body.String())
	}
}

func TestHandleCallEnded(t *testing.T) {
	svc := &fakeFunnel{}
	engine := testRouter(svc)

	rec := postJSON(t, engine, "/api/v1/webhook/voice",
		`{"callId":"call-9","transcript":"send me the link"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastCallID != "call-9" {
		t.Errorf("expected call-9 forwarded, got %q", svc.lastCallID)
	}
}

func TestHandleCallEndedRequiresIdentifier(t *testing.T) {
	engine := testRouter(&fakeFunnel{})

	rec := postJSON(t, engine, "/api/v1/webhook/voice", `{"transcript":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCommand(t *testing.T) {
	svc := &fakeFunnel{cmdResult: "no leads in BOOKED"}
	engine := testRouter(svc)

	rec := postJSON(t, engine, "/api/v1/webhook/commands", `{"command":"leads booked"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "no leads in BOOKED") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandleCommandParseError(t *testing.T) {
	engine := testRouter(&fakeFunnel{})

	rec := postJSON(t, engine, "/api/v1/webhook/commands", `{"command":"frobnicate"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad grammar, got %d", rec.Code)
	}
}

func TestHashKeyDeterministic(t *testing.T) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(plaintext, "whk_") {
		t.Errorf("expected whk_ prefix, got %q", plaintext)
	}
	if HashKey(plaintext) != hash {
		t.Error("expected HashKey to reproduce the stored hash")
	}
	if !strings.HasPrefix(plaintext, prefix) {
		t.Errorf("expected prefix %q to match plaintext", prefix)
	}
}
