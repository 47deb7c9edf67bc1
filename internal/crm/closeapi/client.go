// Package closeapi implements the lead record store against the Close
// CRM REST API. Lead identity for form submissions uses an external id
// so repeated webhook deliveries upsert instead of duplicating.
package closeapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	if !cfg.IsCRMEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		apiKey:  cfg.GetCRMAPIKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type apiLead struct {
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Contacts []apiContact      `json:"contacts,omitempty"`
	Custom   map[string]string `json:"custom,omitempty"`
}

type apiContact struct {
	Name   string     `json:"name,omitempty"`
	Emails []apiEmail `json:"emails,omitempty"`
	Phones []apiPhone `json:"phones,omitempty"`
}

type apiEmail struct {
	Email string `json:"email"`
	Type  string `json:"type,omitempty"`
}

type apiPhone struct {
	Phone string `json:"phone"`
	Type  string `json:"type,omitempty"`
}

type apiNote struct {
	LeadID string `json:"lead_id"`
	Note   string `json:"note"`
}

type searchResponse struct {
	Data []apiLead `json:"data"`
}

const (
	fieldExternalID = "external_id"
	fieldLeadType   = "lead_type"
	fieldPriority   = "priority"
	fieldState      = "state"
	fieldStateAt    = "state_updated_at"
	fieldCursor     = "sequence_cursor"
	fieldLastSent   = "last_step_sent_at"
	fieldEnteredAt  = "entered_at"
	fieldGoals      = "goals"
	fieldBookingRef = "booking_reference"
	fieldBookingAt  = "booking_starts_at"
	fieldBookingLoc = "booking_location"
	fieldCallRef    = "call_reference"
)

func (c *Client) FindByID(ctx context.Context, id string) (*crm.Lead, error) {
	var lead apiLead
	if err := c.do(ctx, http.MethodGet, "/lead/"+url.PathEscape(id)+"/", nil, &lead); err != nil {
		return nil, err
	}
	return fromAPILead(lead), nil
}

func (c *Client) FindByEmail(ctx context.Context, email string) (*crm.Lead, error) {
	return c.search(ctx, fmt.Sprintf(`email:"%s"`, strings.ToLower(strings.TrimSpace(email))))
}

func (c *Client) FindByPhone(ctx context.Context, phone string) (*crm.Lead, error) {
	return c.search(ctx, fmt.Sprintf(`phone:"%s"`, strings.TrimSpace(phone)))
}

func (c *Client) FindByExternalID(ctx context.Context, externalID string) (*crm.Lead, error) {
	return c.search(ctx, fmt.Sprintf(`custom.%s:"%s"`, fieldExternalID, externalID))
}

func (c *Client) ListByState(ctx context.Context, state domain.State) ([]*crm.Lead, error) {
	query := fmt.Sprintf(`custom.%s:"%s"`, fieldState, state)

	var result searchResponse
	path := "/lead/?query=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	leads := make([]*crm.Lead, 0, len(result.Data))
	for _, item := range result.Data {
		leads = append(leads, fromAPILead(item))
	}
	return leads, nil
}

func (c *Client) Create(ctx context.Context, lead *crm.Lead) error {
	payload := toAPILead(lead)

	var created apiLead
	if err := c.do(ctx, http.MethodPost, "/lead/", payload, &created); err != nil {
		return err
	}
	lead.ID = created.ID
	c.log.Info("crm lead created", "lead_id", lead.ID, "lead_type", string(lead.LeadType))
	return nil
}

func (c *Client) Update(ctx context.Context, id string, update crm.LeadUpdate) error {
	payload := apiLead{Custom: map[string]string{}}
	if update.Name != nil {
		payload.Name = *update.Name
	}
	if update.Goals != nil {
		payload.Custom[fieldGoals] = *update.Goals
	}
	if update.Priority != nil {
		payload.Custom[fieldPriority] = string(*update.Priority)
	}
	if update.SequenceCursor != nil {
		payload.Custom[fieldCursor] = fmt.Sprintf("%d", *update.SequenceCursor)
	}
	if update.LastStepSentAt != nil {
		payload.Custom[fieldLastSent] = update.LastStepSentAt.UTC().Format(time.RFC3339)
	}
	if update.Booking != nil {
		payload.Custom[fieldBookingRef] = update.Booking.Reference
		payload.Custom[fieldBookingAt] = update.Booking.StartsAt.UTC().Format(time.RFC3339)
		payload.Custom[fieldBookingLoc] = update.Booking.Location
	}
	if update.CallReference != nil {
		payload.Custom[fieldCallRef] = *update.CallReference
	}

	return c.do(ctx, http.MethodPut, "/lead/"+url.PathEscape(id)+"/", payload, nil)
}

// UpdateState writes the new state, then appends the activity note. The
// API has no transactions; if the note write fails the error is marked
// retryable so the caller re-runs the whole step.
func (c *Client) UpdateState(ctx context.Context, id string, newState domain.State, activity crm.Activity) error {
	payload := apiLead{Custom: map[string]string{
		fieldState:   string(newState),
		fieldStateAt: time.Now().UTC().Format(time.RFC3339),
	}}
	if err := c.do(ctx, http.MethodPut, "/lead/"+url.PathEscape(id)+"/", payload, nil); err != nil {
		return err
	}

	activity.LeadID = id
	if err := c.AppendActivity(ctx, activity); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "state updated but activity append failed", err)
	}
	return nil
}

func (c *Client) AppendActivity(ctx context.Context, activity crm.Activity) error {
	note := apiNote{
		LeadID: activity.LeadID,
		Note:   formatNote(activity),
	}
	return c.do(ctx, http.MethodPost, "/activity/note/", note, nil)
}

func (c *Client) RecentActivities(ctx context.Context, leadID string, limit int) ([]crm.Activity, error) {
	type noteItem struct {
		ID          string    `json:"id"`
		Note        string    `json:"note"`
		DateCreated time.Time `json:"date_created"`
	}
	var result struct {
		Data []noteItem `json:"data"`
	}

	path := fmt.Sprintf("/activity/note/?lead_id=%s&_limit=%d&_order_by=-date_created", url.QueryEscape(leadID), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	items := make([]crm.Activity, 0, len(result.Data))
	for i := len(result.Data) - 1; i >= 0; i-- {
		item := result.Data[i]
		items = append(items, parseNote(item.ID, leadID, item.Note, item.DateCreated))
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal crm payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiKey+":")))

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "crm request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return crm.ErrNotFound
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		data, _ := io.ReadAll(resp.Body)
		return apperr.Wrap(apperr.KindUnavailable,
			fmt.Sprintf("crm returned %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(data))))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("crm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode crm response: %w", err)
		}
	}
	return nil
}

func (c *Client) search(ctx context.Context, query string) (*crm.Lead, error) {
	var result searchResponse
	path := "/lead/?query=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, crm.ErrNotFound
	}
	return fromAPILead(result.Data[0]), nil
}

func toAPILead(lead *crm.Lead) apiLead {
	contact := apiContact{Name: lead.Name}
	if lead.Email != "" {
		contact.Emails = []apiEmail{{Email: lead.Email, Type: "office"}}
	}
	if lead.Phone != "" {
		contact.Phones = []apiPhone{{Phone: lead.Phone, Type: "office"}}
	}

	custom := map[string]string{
		fieldLeadType:  string(lead.LeadType),
		fieldPriority:  string(lead.Priority),
		fieldState:     string(lead.State),
		fieldCursor:    fmt.Sprintf("%d", lead.SequenceCursor),
		fieldEnteredAt: lead.EnteredAt.UTC().Format(time.RFC3339),
	}
	if !lead.StateUpdatedAt.IsZero() {
		custom[fieldStateAt] = lead.StateUpdatedAt.UTC().Format(time.RFC3339)
	}
	if lead.ExternalID != "" {
		custom[fieldExternalID] = lead.ExternalID
	}
	if lead.Goals != "" {
		custom[fieldGoals] = lead.Goals
	}

	name := lead.Company
	if name == "" {
		name = lead.Name
	}

	return apiLead{
		Name:     name,
		Contacts: []apiContact{contact},
		Custom:   custom,
	}
}

func fromAPILead(item apiLead) *crm.Lead {
	lead := &crm.Lead{
		ID:      item.ID,
		Company: item.Name,
	}
	if len(item.Contacts) > 0 {
		contact := item.Contacts[0]
		lead.Name = contact.Name
		if len(contact.Emails) > 0 {
			lead.Email = contact.Emails[0].Email
		}
		if len(contact.Phones) > 0 {
			lead.Phone = contact.Phones[0].Phone
		}
	}

	custom := item.Custom
	lead.ExternalID = custom[fieldExternalID]
	lead.Goals = custom[fieldGoals]
	lead.LeadType = domain.LeadType(custom[fieldLeadType])
	lead.Priority = domain.Priority(custom[fieldPriority])
	lead.State = domain.State(custom[fieldState])
	lead.CallReference = custom[fieldCallRef]
	if cursor, err := strconv.Atoi(custom[fieldCursor]); err == nil {
		lead.SequenceCursor = cursor
	}

	if raw := custom[fieldEnteredAt]; raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			lead.EnteredAt = parsed
		}
	}
	if raw := custom[fieldStateAt]; raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			lead.StateUpdatedAt = parsed
		}
	}
	if raw := custom[fieldLastSent]; raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			lead.LastStepSentAt = &parsed
		}
	}
	if ref := custom[fieldBookingRef]; ref != "" {
		booking := &crm.BookingInfo{Reference: ref, Location: custom[fieldBookingLoc]}
		if raw := custom[fieldBookingAt]; raw != "" {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				booking.StartsAt = parsed
			}
		}
		lead.Booking = booking
	}

	return lead
}

// formatNote renders a timeline note. Contact details stay off the note
// body; identity lives on the lead record itself.
func formatNote(activity crm.Activity) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(activity.Kind))
	if activity.Channel != "" {
		b.WriteString("/" + activity.Channel)
	}
	if activity.Direction != "" {
		b.WriteString("/" + activity.Direction)
	}
	b.WriteString("] ")
	b.WriteString(activity.Note)
	return b.String()
}

func parseNote(id, leadID, note string, createdAt time.Time) crm.Activity {
	activity := crm.Activity{
		ID:        id,
		LeadID:    leadID,
		Kind:      crm.ActivityMessage,
		Note:      note,
		CreatedAt: createdAt,
	}

	if !strings.HasPrefix(note, "[") {
		return activity
	}
	end := strings.Index(note, "] ")
	if end < 0 {
		return activity
	}

	tags := strings.Split(note[1:end], "/")
	activity.Kind = crm.ActivityKind(tags[0])
	if len(tags) > 1 {
		activity.Channel = tags[1]
	}
	if len(tags) > 2 {
		activity.Direction = tags[2]
	}
	activity.Note = note[end+2:]
	return activity
}
