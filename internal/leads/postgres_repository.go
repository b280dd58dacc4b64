package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db pgxQuerier
}

// NewPostgresRepository accepts a *pgxpool.Pool or anything with the same
// query methods.
func NewPostgresRepository(db pgxQuerier) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const upsertLeadSQL = `
	INSERT INTO leads (id, bot_id, conversation_id, name, email, phone, message, source)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (bot_id, conversation_id) DO UPDATE
	SET name = EXCLUDED.name,
	    email = EXCLUDED.email,
	    phone = EXCLUDED.phone,
	    message = COALESCE(NULLIF(EXCLUDED.message, ''), leads.message)
	RETURNING id, message, created_at
`

// Create inserts a lead, or updates the existing one for the same
// conversation.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.normalize()

	var conversationID *string
	if req.ConversationID != "" {
		conversationID = &req.ConversationID
	}

	lead := &Lead{
		BotID:          req.BotID,
		ConversationID: req.ConversationID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Source:         req.Source,
	}
	if err := r.db.QueryRow(ctx, upsertLeadSQL,
		uuid.New().String(),
		req.BotID,
		conversationID,
		req.Name,
		req.Email,
		req.Phone,
		req.Message,
		req.Source,
	).Scan(&lead.ID, &lead.Message, &lead.CreatedAt); err != nil {
		return nil, fmt.Errorf("leads: upsert failed: %w", err)
	}
	return lead, nil
}

const leadColumns = `id, bot_id, COALESCE(conversation_id, ''), name, email, phone, message, source, created_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID,
		&lead.BotID,
		&lead.ConversationID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Message,
		&lead.Source,
		&lead.CreatedAt,
	)
	return &lead, err
}

// GetByID fetches a lead scoped to the bot.
func (r *PostgresRepository) GetByID(ctx context.Context, botID, id string) (*Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND bot_id = $2`, id, botID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// ListByBot returns a page of leads, newest first.
func (r *PostgresRepository) ListByBot(ctx context.Context, botID string, filter ListFilter) ([]*Lead, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE bot_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		botID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}
