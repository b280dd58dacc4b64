package leads

import (
	"strings"
	"time"
)

// Lead sources.
const (
	SourceChat = "chat"
	SourceForm = "form"
)

// Lead is a visitor who left contact details, either in chat or through the
// widget form.
type Lead struct {
	ID             string    `json:"id"`
	BotID          string    `json:"bot_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Message        string    `json:"message"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateLeadRequest is the input for creating a lead
type CreateLeadRequest struct {
	BotID          string `json:"-"`
	ConversationID string `json:"conversation_id,omitempty"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Message        string `json:"message"`
	Source         string `json:"-"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.BotID) == "" {
		return ErrMissingBotID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Email) == "" && strings.TrimSpace(r.Phone) == "" {
		return ErrMissingContact
	}
	return nil
}

func (r *CreateLeadRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Message = strings.TrimSpace(r.Message)
	r.ConversationID = strings.TrimSpace(r.ConversationID)
	if r.Source == "" {
		r.Source = SourceForm
	}
}

// ListFilter pages through a bot's leads, newest first.
type ListFilter struct {
	Limit  int
	Offset int
}
