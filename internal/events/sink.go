package events

import (
	"context"

	"github.com/wolfman30/botdesk/internal/chat"
)

// OutboxSink queues chat side effects for webhook delivery.
type OutboxSink struct {
	store *OutboxStore
}

func NewOutboxSink(store *OutboxStore) *OutboxSink {
	if store == nil {
		panic("events: outbox store required")
	}
	return &OutboxSink{store: store}
}

func (s *OutboxSink) Publish(ctx context.Context, botID, conversationID string, effects []chat.SideEffect) error {
	pending := make([]PendingEvent, 0, len(effects))
	for _, effect := range effects {
		p, err := FromSideEffect(botID, conversationID, effect)
		if err != nil {
			return err
		}
		pending = append(pending, p)
	}
	return s.store.Append(ctx, botID, conversationID, pending)
}
