// Package calendly implements the booking oracle against the Calendly v2 API.
package calendly

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
)

const defaultBaseURL = "https://api.calendly.com"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger

	userURI string
}

func NewClient(cfg config.BookingConfig, log *logger.Logger) *Client {
	if !cfg.IsBookingEnabled() {
		return nil
	}

	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  cfg.GetCalendlyAPIKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type userResponse struct {
	Resource struct {
		URI string `json:"uri"`
	} `json:"resource"`
}

type eventsResponse struct {
	Collection []struct {
		URI       string    `json:"uri"`
		StartTime time.Time `json:"start_time"`
		Status    string    `json:"status"`
		Location  struct {
			Location string `json:"location"`
			JoinURL  string `json:"join_url"`
		} `json:"location"`
	} `json:"collection"`
}

type inviteesResponse struct {
	Collection []struct {
		Email string `json:"email"`
	} `json:"collection"`
}

// CheckBooking looks for an active scheduled event whose invitee list
// contains the given email (case-insensitive), created since the given
// time. Returns nil when no booking is found.
func (c *Client) CheckBooking(ctx context.Context, email string, since time.Time) (*booking.Event, error) {
	if c == nil {
		return nil, nil
	}

	userURI, err := c.currentUserURI(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("user", userURI)
	query.Set("status", "active")
	query.Set("min_start_time", since.UTC().Format(time.RFC3339))
	query.Set("count", "50")

	var events eventsResponse
	if err := c.get(ctx, "/scheduled_events?"+query.Encode(), &events); err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(email))
	for _, event := range events.Collection {
		matched, err := c.eventHasInvitee(ctx, event.URI, needle)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}

		location := event.Location.Location
		if event.Location.JoinURL != "" {
			location = event.Location.JoinURL
		}
		c.log.Info("booking detected", "event_uri", event.URI, "starts_at", event.StartTime)
		return &booking.Event{
			Reference: event.URI,
			StartsAt:  event.StartTime,
			Location:  location,
		}, nil
	}

	return nil, nil
}

func (c *Client) eventHasInvitee(ctx context.Context, eventURI, email string) (bool, error) {
	// The invitee listing hangs off the full event URI.
	path := strings.TrimPrefix(eventURI, c.baseURL) + "/invitees"

	var invitees inviteesResponse
	if err := c.get(ctx, path, &invitees); err != nil {
		return false, err
	}

	for _, invitee := range invitees.Collection {
		if strings.ToLower(invitee.Email) == email {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) currentUserURI(ctx context.Context) (string, error) {
	if c.userURI != "" {
		return c.userURI, nil
	}

	var user userResponse
	if err := c.get(ctx, "/users/me", &user); err != nil {
		return "", err
	}
	if user.Resource.URI == "" {
		return "", fmt.Errorf("calendly returned empty user uri")
	}

	c.userURI = user.Resource.URI
	return c.userURI, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "calendly request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return apperr.Wrap(apperr.KindUnavailable,
			fmt.Sprintf("calendly returned %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
