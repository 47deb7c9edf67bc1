package webhook

import (
	"context"
	"net/http"

	"leadfunnel_backend/internal/analyzer"
	"leadfunnel_backend/internal/channels/sms"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/funnel"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/platform/httpkit"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const errInvalidRequest = "invalid request body"

// FunnelService is the slice of the funnel engine the webhook layer uses.
type FunnelService interface {
	ProcessSubmission(ctx context.Context, sub domain.Submission) (*crm.Lead, error)
	HandleInbound(ctx context.Context, msg analyzer.Message) (*funnel.InboundResult, error)
	HandleCallEnded(ctx context.Context, callID, callerPhone, transcript string) error
	ExecuteCommand(ctx context.Context, cmd funnel.Command) (string, error)
}

// Handler handles webhook HTTP requests.
type Handler struct {
	service FunnelService
	val     *validator.Validator
	log     *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(service FunnelService, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// ---- Form Submission (public, API-key authenticated) ----

// FormSubmissionRequest is the inbound form payload.
type FormSubmissionRequest struct {
	ExternalID  string `json:"externalId" validate:"max=100"`
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"max=200"`
	Company     string `json:"company" validate:"max=200"`
	Phone       string `json:"phone" validate:"max=30"`
	ProductLine string `json:"productLine" validate:"max=100"`
	Goals       string `json:"goals" validate:"max=2000"`
}

// FormSubmissionResponse acknowledges a processed submission.
type FormSubmissionResponse struct {
	LeadID   string `json:"leadId"`
	State    string `json:"state"`
	LeadType string `json:"leadType"`
	Priority string `json:"priority"`
}

// HandleFormSubmission processes an inbound form submission.
// POST /api/v1/webhook/forms
func (h *Handler) HandleFormSubmission(c *gin.Context) {
	var req FormSubmissionRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	lead, err := h.service.ProcessSubmission(c.Request.Context(), domain.Submission{
		ExternalID:  req.ExternalID,
		Email:       req.Email,
		Name:        req.Name,
		Company:     req.Company,
		Phone:       req.Phone,
		ProductLine: req.ProductLine,
		Goals:       req.Goals,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, FormSubmissionResponse{
		LeadID:   lead.ID,
		State:    string(lead.State),
		LeadType: string(lead.LeadType),
		Priority: string(lead.Priority),
	})
}

// ---- Inbound Email (inbound-parse style form fields) ----

// InboundReplyResponse reports how an inbound message was routed.
type InboundReplyResponse struct {
	LeadID string `json:"leadId,omitempty"`
	Action string `json:"action"`
}

// HandleInboundEmail processes an inbound email reply.
// POST /api/v1/webhook/email
func (h *Handler) HandleInboundEmail(c *gin.Context) {
	from := c.PostForm("from")
	body := c.PostForm("text")
	if from == "" {
		httpkit.Error(c, http.StatusBadRequest, "missing from field", nil)
		return
	}

	result, err := h.service.HandleInbound(c.Request.Context(), analyzer.Message{
		Channel: funnel.ChannelEmail,
		Sender:  from,
		Body:    body,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, InboundReplyResponse{LeadID: result.LeadID, Action: string(result.Action)})
}

// ---- Inbound SMS (Twilio form fields, TwiML response) ----

// HandleInboundSMS processes an inbound text message. The response is
// always valid TwiML so Twilio never surfaces an application error to
// the sender.
// POST /api/v1/webhook/sms
func (h *Handler) HandleInboundSMS(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")
	if from == "" {
		c.Data(http.StatusOK, "text/xml", []byte(sms.TwiML("")))
		return
	}

	result, err := h.service.HandleInbound(c.Request.Context(), analyzer.Message{
		Channel: funnel.ChannelSMS,
		Sender:  from,
		Body:    body,
	})
	if err != nil {
		h.log.Error("inbound sms handling failed", "error", err.Error())
		c.Data(http.StatusOK, "text/xml", []byte(sms.TwiML("")))
		return
	}

	// Replies already delivered via the SMS sender go out empty here;
	// the TwiML body is only used for the unknown-sender holding text.
	reply := ""
	if result.LeadID == "" {
		reply = result.Reply
	}
	c.Data(http.StatusOK, "text/xml", []byte(sms.TwiML(reply)))
}

// ---- Voice call-ended callback ----

// CallEndedRequest is the voice provider's end-of-call report.
type CallEndedRequest struct {
	CallID     string `json:"callId" validate:"max=100"`
	Phone      string `json:"phone" validate:"max=30"`
	Transcript string `json:"transcript" validate:"max=20000"`
}

// HandleCallEnded processes a finished outbound call.
// POST /api/v1/webhook/voice
func (h *Handler) HandleCallEnded(c *gin.Context) {
	var req CallEndedRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	if req.CallID == "" && req.Phone == "" {
		httpkit.Error(c, http.StatusBadRequest, "callId or phone is required", nil)
		return
	}

	err := h.service.HandleCallEnded(c.Request.Context(), req.CallID, req.Phone, req.Transcript)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "processed"})
}

// ---- Operator commands (API-key authenticated) ----

// CommandRequest carries one operator command line.
type CommandRequest struct {
	Command string `json:"command" validate:"required,max=500"`
}

// CommandResponse is the command execution result.
type CommandResponse struct {
	Result string `json:"result"`
}

// HandleCommand parses and executes an operator command.
// POST /api/v1/webhook/commands
func (h *Handler) HandleCommand(c *gin.Context) {
	var req CommandRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	cmd, err := funnel.ParseCommand(req.Command)
	if httpkit.HandleError(c, err) {
		return
	}

	result, err := h.service.ExecuteCommand(c.Request.Context(), cmd)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, CommandResponse{Result: result})
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return false
	}
	return true
}
