package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrStateConflict is returned when another writer saved the conversation
// after it was loaded.
var ErrStateConflict = errors.New("chat: conversation state changed concurrently")

// ErrConversationNotFound is returned by lookups of conversations that never
// existed or have expired.
var ErrConversationNotFound = errors.New("chat: conversation not found")

const (
	DefaultConversationTTL = 24 * time.Hour
	maxStoredTurns         = 50
)

// Turn is one message of the transcript.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Intent  Intent    `json:"intent,omitempty"`
	At      time.Time `json:"at"`
}

// State is the per-conversation aggregate. Version increments on every save
// and guards against lost updates.
type State struct {
	BotID          string    `json:"bot_id"`
	ConversationID string    `json:"conversation_id"`
	Version        int64     `json:"version"`
	History        []Turn    `json:"history"`
	Capture        Capture   `json:"capture"`
	CaptureFired   bool      `json:"capture_fired"`
	Flags          Flags     `json:"flags"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LastAssistant returns the most recent assistant message.
func (s *State) LastAssistant() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == "assistant" {
			return s.History[i].Content
		}
	}
	return ""
}

// Append adds a turn, dropping the oldest once the transcript is full.
func (s *State) Append(turn Turn) {
	s.History = append(s.History, turn)
	if extra := len(s.History) - maxStoredTurns; extra > 0 {
		s.History = append([]Turn(nil), s.History[extra:]...)
	}
}

// Recent returns at most n trailing turns.
func (s *State) Recent(n int) []Turn {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// StateStore persists conversation state. Load returns a fresh state with
// Version 0 when nothing is stored. Save fails with ErrStateConflict when the
// stored version no longer matches st.Version, and bumps st.Version on success.
type StateStore interface {
	Load(ctx context.Context, botID, conversationID string) (*State, error)
	Save(ctx context.Context, st *State) error
}

// RedisStateStore keeps state as JSON under a TTL and uses WATCH/MULTI for the
// version check.
type RedisStateStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if client == nil {
		panic("chat: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &RedisStateStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("botdesk.internal.chat.state"),
	}
}

func stateKey(botID, conversationID string) string {
	return fmt.Sprintf("chat:state:%s:%s", botID, conversationID)
}

func (s *RedisStateStore) Load(ctx context.Context, botID, conversationID string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "chat.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(botID, conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &State{BotID: botID, ConversationID: conversationID}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to load state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to decode state: %w", err)
	}
	return &st, nil
}

func (s *RedisStateStore) Save(ctx context.Context, st *State) error {
	ctx, span := s.tracer.Start(ctx, "chat.save_state")
	defer span.End()

	key := stateKey(st.BotID, st.ConversationID)
	next := *st
	next.Version = st.Version + 1

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != st.Version {
			return ErrStateConflict
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("chat: failed to marshal state: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		err = ErrStateConflict
	case err == nil:
		st.Version = next.Version
		return nil
	}
	span.RecordError(err)
	if errors.Is(err, ErrStateConflict) {
		return err
	}
	return fmt.Errorf("chat: failed to persist state: %w", err)
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("chat: failed to read state version: %w", err)
	}
	var probe struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("chat: failed to decode stored state: %w", err)
	}
	return probe.Version, nil
}

// MemoryStateStore is an in-process StateStore for tests and local runs.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]State)}
}

func (m *MemoryStateStore) Load(_ context.Context, botID, conversationID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[stateKey(botID, conversationID)]
	if !ok {
		return &State{BotID: botID, ConversationID: conversationID}, nil
	}
	st.History = append([]Turn(nil), st.History...)
	return &st, nil
}

func (m *MemoryStateStore) Save(_ context.Context, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stateKey(st.BotID, st.ConversationID)
	if m.states[key].Version != st.Version {
		return ErrStateConflict
	}
	next := *st
	next.Version++
	next.History = append([]Turn(nil), st.History...)
	m.states[key] = next
	st.Version = next.Version
	return nil
}
