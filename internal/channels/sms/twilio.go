// Package sms implements the SMS channel against the Twilio REST API.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/phone"

	"golang.org/x/time/rate"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// MaxBodyLength is the longest SMS body we send. Longer replies are
// trimmed with a trailing ellipsis.
const MaxBodyLength = 300

type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	http       *http.Client
	log        *logger.Logger

	// Twilio throttles outbound sends per number; pace to stay under it.
	limiter *rate.Limiter
}

func NewClient(cfg config.SMSConfig, log *logger.Logger) *Client {
	if !cfg.IsSMSEnabled() {
		return nil
	}

	return &Client{
		accountSID: cfg.GetTwilioAccountSID(),
		authToken:  cfg.GetTwilioAuthToken(),
		fromNumber: cfg.GetTwilioFromNumber(),
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(1), 5),
	}
}

func (c *Client) SendSMS(ctx context.Context, toPhone, body string) error {
	if c == nil {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("To", phone.NormalizeE164(toPhone))
	form.Set("From", c.fromNumber)
	form.Set("Body", TrimBody(body))

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", twilioBaseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "twilio request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		data, _ := io.ReadAll(resp.Body)
		return apperr.Wrap(apperr.KindUnavailable,
			fmt.Sprintf("twilio returned %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		c.log.Info("sms sent", "message_sid", result.SID)
	}

	return nil
}

// TrimBody enforces the SMS length limit, keeping 297 characters plus
// an ellipsis when the body overruns.
func TrimBody(body string) string {
	runes := []rune(body)
	if len(runes) <= MaxBodyLength {
		return body
	}
	return string(runes[:MaxBodyLength-3]) + "..."
}
