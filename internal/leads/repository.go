package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository stores leads. Create is idempotent per bot and conversation: a
// second lead for the same conversation updates the first one instead of
// adding a row.
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, botID, id string) (*Lead, error)
	ListByBot(ctx context.Context, botID string, filter ListFilter) ([]*Lead, error)
}

// InMemoryRepository keeps leads in a map for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if req.ConversationID != "" {
		for _, existing := range r.leads {
			if existing.BotID == req.BotID && existing.ConversationID == req.ConversationID {
				existing.Name, existing.Email, existing.Phone = req.Name, req.Email, req.Phone
				if req.Message != "" {
					existing.Message = req.Message
				}
				copied := *existing
				return &copied, nil
			}
		}
	}

	lead := &Lead{
		ID:             uuid.New().String(),
		BotID:          req.BotID,
		ConversationID: req.ConversationID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Message:        req.Message,
		Source:         req.Source,
		CreatedAt:      time.Now().UTC(),
	}
	r.leads[lead.ID] = lead
	copied := *lead
	return &copied, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, botID, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok || lead.BotID != botID {
		return nil, ErrLeadNotFound
	}
	copied := *lead
	return &copied, nil
}

func (r *InMemoryRepository) ListByBot(_ context.Context, botID string, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Lead
	for _, lead := range r.leads {
		if lead.BotID == botID {
			copied := *lead
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset >= len(out) {
		return []*Lead{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
