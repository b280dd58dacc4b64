package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Event is a versioned payload delivered to bot webhooks.
type Event interface {
	EventType() string
}

// Envelope is the stored outbox payload and the JSON body posted to webhooks.
type Envelope struct {
	ID             uuid.UUID       `json:"id"`
	Type           string          `json:"type"`
	BotID          string          `json:"bot_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Data           json.RawMessage `json:"data"`
}

var (
	errMissingBotID = errors.New("events: bot id is required")
	errNilEvent     = errors.New("events: event is required")
	nowFunc         = time.Now
)

// NewEnvelope wraps p for botID. A missing id or timestamp is filled in.
func NewEnvelope(botID, conversationID string, p PendingEvent) (Envelope, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return Envelope{}, errMissingBotID
	}
	if p.Event == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(p.Event.EventType())
	if eventType == "" {
		return Envelope{}, fmt.Errorf("events: %T has no event type", p.Event)
	}
	data, err := json.Marshal(p.Event)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	env := Envelope{
		ID:             p.ID,
		Type:           eventType,
		BotID:          botID,
		ConversationID: strings.TrimSpace(conversationID),
		OccurredAt:     p.OccurredAt.UTC(),
		Data:           data,
	}
	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}
	if p.OccurredAt.IsZero() {
		env.OccurredAt = nowFunc().UTC()
	}
	return env, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// insertEnvelope queues env. An id that is already stored is left alone so a
// replayed turn never sends the same webhook twice.
func insertEnvelope(ctx context.Context, exec execer, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	const query = `
		INSERT INTO outbox (id, bot_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := exec.Exec(ctx, query, env.ID, env.BotID, env.Type, body); err != nil {
		return fmt.Errorf("events: insert %s: %w", env.Type, err)
	}
	return nil
}
