// Package voice implements the outbound-call channel against a VAPI
// style assistant API.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadfunnel_backend/internal/channels"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/phone"
)

const defaultBaseURL = "https://api.vapi.ai"

// maxCallSeconds caps outbound call duration.
const maxCallSeconds = 600

type Client struct {
	baseURL     string
	apiKey      string
	assistantID string
	fromNumber  string
	http        *http.Client
	log         *logger.Logger
}

func NewClient(cfg config.VoiceConfig, log *logger.Logger) *Client {
	if !cfg.IsVoiceEnabled() {
		return nil
	}

	return &Client{
		baseURL:     defaultBaseURL,
		apiKey:      cfg.GetVoiceAPIKey(),
		assistantID: cfg.GetVoiceAssistantID(),
		fromNumber:  cfg.GetVoiceFromNumber(),
		http:        &http.Client{Timeout: 15 * time.Second},
		log:         log,
	}
}

type callRequest struct {
	AssistantID string             `json:"assistantId,omitempty"`
	Assistant   *assistantOverride `json:"assistantOverrides,omitempty"`
	PhoneNumber struct {
		TwilioPhoneNumber string `json:"twilioPhoneNumber"`
	} `json:"phoneNumber"`
	Customer struct {
		Number string `json:"number"`
		Name   string `json:"name,omitempty"`
	} `json:"customer"`
}

type assistantOverride struct {
	FirstMessage       string `json:"firstMessage,omitempty"`
	MaxDurationSeconds int    `json:"maxDurationSeconds,omitempty"`
	Metadata           struct {
		Reason string `json:"reason"`
	} `json:"metadata"`
}

type callResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *Client) PlaceCall(ctx context.Context, req channels.CallRequest) (*channels.CallResult, error) {
	if c == nil {
		return nil, fmt.Errorf("voice channel not configured")
	}

	payload := callRequest{AssistantID: c.assistantID}
	payload.PhoneNumber.TwilioPhoneNumber = c.fromNumber
	payload.Customer.Number = phone.NormalizeE164(req.ToPhone)
	payload.Customer.Name = req.LeadName

	override := &assistantOverride{
		FirstMessage:       openingLine(domain.CallReason(req.Reason), req.LeadName),
		MaxDurationSeconds: maxCallSeconds,
	}
	override.Metadata.Reason = req.Reason
	payload.Assistant = override

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal call payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "voice call request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, apperr.Wrap(apperr.KindUnavailable,
			fmt.Sprintf("voice provider returned %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}

	var result callResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode call response: %w", err)
	}

	c.log.Info("outbound call placed", "call_id", result.ID, "reason", req.Reason)

	return &channels.CallResult{CallID: result.ID, Status: result.Status}, nil
}

// openingLine picks the assistant's first sentence for the call reason.
func openingLine(reason domain.CallReason, leadName string) string {
	greeting := "Hi"
	if leadName != "" {
		greeting = "Hi " + firstName(leadName)
	}

	switch reason {
	case domain.CallReasonPricingQuestion:
		return greeting + ", you asked about pricing recently - I'm calling to walk you through the options and answer anything that's unclear."
	case domain.CallReasonDemoReminder:
		return greeting + ", you mentioned wanting a demo - I'd love to get that scheduled for you while I have you."
	default:
		return greeting + ", just following up on the notes we've been sending - do you have two minutes to talk about where you are in the process?"
	}
}

func firstName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return full
	}
	return parts[0]
}
