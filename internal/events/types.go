package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/botdesk/internal/chat"
)

const (
	EventTypeLeadCaptured  = "botdesk.lead.captured.v1"
	EventTypeBookingIntent = "botdesk.booking.intent.v1"
)

// LeadCapturedV1 is emitted once a visitor has left both a name and an email.
type LeadCapturedV1 struct {
	BotID          string    `json:"bot_id"`
	ConversationID string    `json:"conversation_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Message        string    `json:"message,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

func (LeadCapturedV1) EventType() string { return EventTypeLeadCaptured }

// BookingIntentV1 carries the window a visitor asked for.
type BookingIntentV1 struct {
	BotID          string    `json:"bot_id"`
	ConversationID string    `json:"conversation_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Timezone       string    `json:"timezone"`
	Requested      string    `json:"requested"`
	Name           string    `json:"name,omitempty"`
	Email          string    `json:"email,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}

func (BookingIntentV1) EventType() string { return EventTypeBookingIntent }

// PendingEvent is an event with the identity it should be stored under.
type PendingEvent struct {
	ID         uuid.UUID
	OccurredAt time.Time
	Event      Event
}

// FromSideEffect converts a chat side effect to its webhook event.
func FromSideEffect(botID, conversationID string, effect chat.SideEffect) (PendingEvent, error) {
	id, err := uuid.Parse(effect.ID)
	if err != nil {
		return PendingEvent{}, fmt.Errorf("events: side effect id %q: %w", effect.ID, err)
	}
	pending := PendingEvent{ID: id, OccurredAt: effect.OccurredAt}

	switch effect.Type {
	case chat.SideEffectLeadCaptured:
		if effect.Lead == nil {
			return PendingEvent{}, fmt.Errorf("events: %s without lead payload", effect.Type)
		}
		pending.Event = LeadCapturedV1{
			BotID:          botID,
			ConversationID: conversationID,
			Name:           effect.Lead.Name,
			Email:          effect.Lead.Email,
			Phone:          effect.Lead.Phone,
			Message:        effect.Lead.Message,
			CapturedAt:     effect.OccurredAt.UTC(),
		}
	case chat.SideEffectBookingIntent:
		if effect.Booking == nil {
			return PendingEvent{}, fmt.Errorf("events: %s without booking payload", effect.Type)
		}
		pending.Event = BookingIntentV1{
			BotID:          botID,
			ConversationID: conversationID,
			Start:          effect.Booking.Start,
			End:            effect.Booking.End,
			Timezone:       effect.Booking.Timezone,
			Requested:      effect.Booking.Raw,
			Name:           effect.Booking.Name,
			Email:          effect.Booking.Email,
			RequestedAt:    effect.OccurredAt.UTC(),
		}
	default:
		return PendingEvent{}, fmt.Errorf("events: unknown side effect type %q", effect.Type)
	}
	return pending, nil
}
