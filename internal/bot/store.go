package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/botdesk/pkg/logging"
)

// Repository loads and saves bots.
type Repository interface {
	Get(ctx context.Context, id string) (*Bot, error)
	Save(ctx context.Context, b *Bot) error
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores bot settings as one jsonb document per row.
type PostgresRepository struct {
	db pgxQuerier
}

func NewPostgresRepository(db pgxQuerier) *PostgresRepository {
	if db == nil {
		panic("bot: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Bot, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT settings FROM bots WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bot: select: %w", err)
	}
	var b Bot
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bot: unmarshal settings: %w", err)
	}
	return &b, nil
}

func (r *PostgresRepository) Save(ctx context.Context, b *Bot) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("bot: marshal settings: %w", err)
	}
	query := `
		INSERT INTO bots (id, account_id, settings, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at
		WHERE bots.account_id = EXCLUDED.account_id
	`
	tag, err := r.db.Exec(ctx, query, b.ID, b.AccountID, data, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("bot: upsert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bot: %s belongs to another account", b.ID)
	}
	return nil
}

// CachedRepository keeps a JSON copy of each bot in Redis in front of a
// slower repository.
type CachedRepository struct {
	next   Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if next == nil {
		panic("bot: backing repository required")
	}
	if client == nil {
		panic("bot: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRepository{next: next, redis: client, ttl: ttl, logger: logger}
}

func cacheKey(id string) string {
	return fmt.Sprintf("bot:config:%s", id)
}

func (r *CachedRepository) Get(ctx context.Context, id string) (*Bot, error) {
	data, err := r.redis.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var b Bot
		if jsonErr := json.Unmarshal(data, &b); jsonErr == nil {
			return &b, nil
		}
		r.logger.Warn("bot cache entry unreadable", "bot_id", id)
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("bot cache read failed", "bot_id", id, "error", err)
	}

	b, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(b); err == nil {
		if err := r.redis.Set(ctx, cacheKey(id), payload, r.ttl).Err(); err != nil {
			r.logger.Warn("bot cache write failed", "bot_id", id, "error", err)
		}
	}
	return b, nil
}

func (r *CachedRepository) Save(ctx context.Context, b *Bot) error {
	if err := r.next.Save(ctx, b); err != nil {
		return err
	}
	if err := r.redis.Del(ctx, cacheKey(b.ID)).Err(); err != nil {
		r.logger.Warn("bot cache invalidate failed", "bot_id", b.ID, "error", err)
	}
	return nil
}

// MemoryRepository is an in-process repository for local runs and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	bots map[string]Bot
}

func NewMemoryRepository(seed ...*Bot) *MemoryRepository {
	r := &MemoryRepository{bots: make(map[string]Bot)}
	for _, b := range seed {
		if b != nil {
			r.bots[b.ID] = *b
		}
	}
	return r
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Bot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bots[id]
	if !ok {
		return nil, ErrBotNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) Save(_ context.Context, b *Bot) error {
	if err := b.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.bots[b.ID]; ok && existing.AccountID != b.AccountID {
		return fmt.Errorf("bot: %s belongs to another account", b.ID)
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	r.bots[b.ID] = *b
	return nil
}
