package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/botdesk/internal/chat"
)

// CaptureSink stores lead.captured side effects as leads. Other side effect
// types are ignored.
type CaptureSink struct {
	repo Repository
}

func NewCaptureSink(repo Repository) *CaptureSink {
	if repo == nil {
		panic("leads: repository required")
	}
	return &CaptureSink{repo: repo}
}

func (s *CaptureSink) Publish(ctx context.Context, botID, conversationID string, effects []chat.SideEffect) error {
	var errs []error
	for _, effect := range effects {
		if effect.Type != chat.SideEffectLeadCaptured || effect.Lead == nil {
			continue
		}
		_, err := s.repo.Create(ctx, &CreateLeadRequest{
			BotID:          botID,
			ConversationID: conversationID,
			Name:           effect.Lead.Name,
			Email:          effect.Lead.Email,
			Phone:          effect.Lead.Phone,
			Message:        effect.Lead.Message,
			Source:         SourceChat,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("leads: save captured lead: %w", err))
		}
	}
	return errors.Join(errs...)
}
