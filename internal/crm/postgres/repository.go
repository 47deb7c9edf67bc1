// Package postgres implements the lead record store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/funnel/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, external_id, email, phone, name, company, goals,
	lead_type, priority, state, state_updated_at, sequence_cursor,
	last_step_sent_at, entered_at, booking_reference, booking_starts_at,
	booking_location, call_reference
`

func (r *Repository) FindByID(ctx context.Context, id string) (*crm.Lead, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*crm.Lead, error) {
	return r.findOne(ctx, "LOWER(email) = LOWER($1)", strings.TrimSpace(email))
}

func (r *Repository) FindByPhone(ctx context.Context, phone string) (*crm.Lead, error) {
	return r.findOne(ctx, "phone = $1", strings.TrimSpace(phone))
}

func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*crm.Lead, error) {
	return r.findOne(ctx, "external_id = $1", externalID)
}

func (r *Repository) findOne(ctx context.Context, where string, arg any) (*crm.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE `+where, arg)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, crm.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (r *Repository) ListByState(ctx context.Context, state domain.State) ([]*crm.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE state = $1
		ORDER BY entered_at ASC
	`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]*crm.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return leads, nil
}

func (r *Repository) Create(ctx context.Context, lead *crm.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.EnteredAt.IsZero() {
		lead.EnteredAt = time.Now().UTC()
	}
	if lead.StateUpdatedAt.IsZero() {
		lead.StateUpdatedAt = lead.EnteredAt
	}

	var bookingRef, bookingLoc *string
	var bookingAt *time.Time
	if lead.Booking != nil {
		bookingRef = &lead.Booking.Reference
		bookingAt = &lead.Booking.StartsAt
		bookingLoc = &lead.Booking.Location
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO leads (
			id, external_id, email, phone, name, company, goals,
			lead_type, priority, state, state_updated_at, sequence_cursor,
			last_step_sent_at, entered_at, booking_reference, booking_starts_at,
			booking_location, call_reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		lead.ID, nilIfEmpty(lead.ExternalID), lead.Email, nilIfEmpty(lead.Phone),
		lead.Name, lead.Company, lead.Goals,
		string(lead.LeadType), string(lead.Priority), string(lead.State),
		lead.StateUpdatedAt, lead.SequenceCursor, lead.LastStepSentAt, lead.EnteredAt,
		bookingRef, bookingAt, bookingLoc, nilIfEmpty(lead.CallReference),
	)
	return err
}

func (r *Repository) Update(ctx context.Context, id string, update crm.LeadUpdate) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Company != nil {
		add("company", *update.Company)
	}
	if update.Goals != nil {
		add("goals", *update.Goals)
	}
	if update.Priority != nil {
		add("priority", string(*update.Priority))
	}
	if update.SequenceCursor != nil {
		add("sequence_cursor", *update.SequenceCursor)
	}
	if update.LastStepSentAt != nil {
		add("last_step_sent_at", *update.LastStepSentAt)
	}
	if update.Booking != nil {
		add("booking_reference", update.Booking.Reference)
		add("booking_starts_at", update.Booking.StartsAt)
		add("booking_location", update.Booking.Location)
	}
	if update.CallReference != nil {
		add("call_reference", *update.CallReference)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrNotFound
	}
	return nil
}

// UpdateState changes the lead state and appends the explaining activity
// in a single transaction.
func (r *Repository) UpdateState(ctx context.Context, id string, newState domain.State, activity crm.Activity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE leads SET state = $1, state_updated_at = NOW() WHERE id = $2`, string(newState), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return crm.ErrNotFound
	}

	activity.LeadID = id
	if err := insertActivity(ctx, tx, activity); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) AppendActivity(ctx context.Context, activity crm.Activity) error {
	return insertActivity(ctx, r.pool, activity)
}

func (r *Repository) RecentActivities(ctx context.Context, leadID string, limit int) ([]crm.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, kind, note, channel, direction, created_at
		FROM lead_activities
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]crm.Activity, 0, limit)
	for rows.Next() {
		var item crm.Activity
		var channel, direction *string
		if err := rows.Scan(&item.ID, &item.LeadID, &item.Kind, &item.Note, &channel, &direction, &item.CreatedAt); err != nil {
			return nil, err
		}
		if channel != nil {
			item.Channel = *channel
		}
		if direction != nil {
			item.Direction = *direction
		}
		items = append(items, item)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// Oldest first for conversation context.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertActivity(ctx context.Context, db execer, activity crm.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(ctx, `
		INSERT INTO lead_activities (id, lead_id, kind, note, channel, direction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		activity.ID, activity.LeadID, string(activity.Kind), activity.Note,
		nilIfEmpty(activity.Channel), nilIfEmpty(activity.Direction), activity.CreatedAt,
	)
	return err
}

func scanLead(row pgx.Row) (*crm.Lead, error) {
	var lead crm.Lead
	var externalID, phone, callRef *string
	var leadType, priority, state string
	var bookingRef, bookingLoc *string
	var bookingAt *time.Time

	err := row.Scan(
		&lead.ID, &externalID, &lead.Email, &phone, &lead.Name, &lead.Company, &lead.Goals,
		&leadType, &priority, &state, &lead.StateUpdatedAt, &lead.SequenceCursor,
		&lead.LastStepSentAt, &lead.EnteredAt, &bookingRef, &bookingAt, &bookingLoc, &callRef,
	)
	if err != nil {
		return nil, err
	}

	if externalID != nil {
		lead.ExternalID = *externalID
	}
	if phone != nil {
		lead.Phone = *phone
	}
	if callRef != nil {
		lead.CallReference = *callRef
	}
	lead.LeadType = domain.LeadType(leadType)
	lead.Priority = domain.Priority(priority)
	lead.State = domain.State(state)

	if bookingRef != nil && bookingAt != nil {
		booking := &crm.BookingInfo{Reference: *bookingRef, StartsAt: *bookingAt}
		if bookingLoc != nil {
			booking.Location = *bookingLoc
		}
		lead.Booking = booking
	}

	return &lead, nil
}

func nilIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
