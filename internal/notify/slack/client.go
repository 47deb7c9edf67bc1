// Package slack delivers operator notifications to a Slack channel via
// chat.postMessage.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"leadfunnel_backend/internal/notify"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
)

const postMessageURL = "https://slack.com/api/chat.postMessage"

type Client struct {
	token   string
	channel string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(cfg config.NotifierConfig, log *logger.Logger) *Client {
	if !cfg.IsNotifierEnabled() {
		return nil
	}

	return &Client{
		token:   cfg.GetSlackBotToken(),
		channel: cfg.GetSlackChannel(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Notify posts the message to the configured channel. Failures are
// logged and swallowed.
func (c *Client) Notify(ctx context.Context, message string, lead *notify.LeadRef) {
	if c == nil {
		return
	}

	text := message
	if lead != nil {
		text = fmt.Sprintf("%s\n> lead: %s%s | state: %s | priority: %s",
			message, lead.Name, companySuffix(lead.Company), lead.State, lead.Priority)
	}

	if err := c.post(ctx, text); err != nil {
		c.log.Warn("slack notification failed", "error", err.Error())
	}
}

func (c *Client) post(ctx context.Context, text string) error {
	body, err := json.Marshal(postMessageRequest{Channel: c.channel, Text: text})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postMessageURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result postMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack api error: %s", result.Error)
	}

	return nil
}

func companySuffix(company string) string {
	if strings.TrimSpace(company) == "" {
		return ""
	}
	return " (" + company + ")"
}
