package bootstrap

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/botdesk/internal/bot"
	"github.com/wolfman30/botdesk/internal/chat"
	appconfig "github.com/wolfman30/botdesk/internal/config"
	"github.com/wolfman30/botdesk/internal/embedding"
	"github.com/wolfman30/botdesk/internal/events"
	"github.com/wolfman30/botdesk/internal/knowledge"
	"github.com/wolfman30/botdesk/internal/leads"
	"github.com/wolfman30/botdesk/internal/llm"
	"github.com/wolfman30/botdesk/internal/observability/metrics"
	"github.com/wolfman30/botdesk/internal/ratelimit"
	"github.com/wolfman30/botdesk/pkg/logging"
)

// ChatDeps are the process-wide handles the chat services are built from.
// Pool, Redis, LLM and Embedder may be nil.
type ChatDeps struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Bots     bot.Repository
	LLM      llm.Client
	Model    string
	Embedder embedding.Embedder
	Metrics  *metrics.ChatMetrics
	Logger   *logging.Logger
}

// ChatServices is everything cmd/api needs to serve chat turns.
type ChatServices struct {
	Orchestrator *chat.Orchestrator
	// Reindexer is nil when no embedder is configured.
	Reindexer   bot.Reindexer
	Leads       leads.Repository
	Outbox      *events.OutboxStore
	Limiter     ratelimit.Limiter
	LeadLimiter ratelimit.Limiter
}

// BuildChatServices wires the chat pipeline. Durable stores are used when
// Postgres and Redis are present; otherwise everything lives in memory.
func BuildChatServices(cfg *appconfig.Config, deps ChatDeps) (*ChatServices, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Bots == nil {
		return nil, fmt.Errorf("bootstrap: bot repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	services := &ChatServices{}

	var retriever chat.KnowledgeRetriever
	if deps.Embedder != nil {
		store := BuildChunkStore(deps.Pool)
		services.Reindexer = BuildWriter(cfg, deps.Embedder, store, logger)
		retriever = knowledge.NewRetriever(deps.Embedder, store, cfg.RetrievalTimeout, logger)
	}

	var states chat.StateStore
	limiterCfg := ratelimit.Config{Requests: cfg.RateLimitRequests, Window: cfg.RateLimitWindow}
	leadLimiterCfg := ratelimit.Config{Requests: 5, Window: 10 * time.Minute}
	if deps.Redis != nil {
		states = chat.NewRedisStateStore(deps.Redis, cfg.ConversationTTL)
		services.Limiter = ratelimit.NewRedisLimiter(deps.Redis, limiterCfg)
		services.LeadLimiter = ratelimit.NewRedisLimiter(deps.Redis, leadLimiterCfg, ratelimit.WithKeyPrefix("ratelimit:leads"))
	} else {
		logger.Warn("no redis configured; conversation state and rate limits are per process")
		states = chat.NewMemoryStateStore()
		services.Limiter = ratelimit.NewTokenBucket(limiterCfg)
		services.LeadLimiter = ratelimit.NewTokenBucket(leadLimiterCfg)
	}

	sinks := chat.FanoutSink{}
	if deps.Pool != nil {
		services.Leads = leads.NewPostgresRepository(deps.Pool)
		services.Outbox = events.NewOutboxStore(deps.Pool)
		sinks = append(sinks, events.NewOutboxSink(services.Outbox))
	} else {
		services.Leads = leads.NewInMemoryRepository()
	}
	sinks = append(sinks, leads.NewCaptureSink(services.Leads))

	opts := []chat.Option{
		chat.WithRateLimiter(services.Limiter),
		chat.WithSideEffectSink(sinks),
		chat.WithMetrics(deps.Metrics),
		chat.WithTopK(cfg.RetrievalTopK),
		chat.WithLLMTimeout(cfg.LLMTimeout),
		chat.WithMaxTokens(int32(cfg.LLMMaxTokens)),
		chat.WithHistoryTurns(cfg.HistoryTurnLimit),
		chat.WithSlotLength(cfg.BookingSlotLength),
	}
	if deps.Model != "" {
		opts = append(opts, chat.WithModel(deps.Model))
	}
	services.Orchestrator = chat.NewOrchestrator(deps.Bots, states, deps.LLM, retriever, logger, opts...)
	return services, nil
}

// BuildChunkStore returns the pgvector store, or an in-memory one without a pool.
func BuildChunkStore(pool *pgxpool.Pool) knowledge.ChunkStore {
	if pool == nil {
		return knowledge.NewMemoryStore()
	}
	return knowledge.NewPGVectorStore(pool)
}

// BuildWriter builds the knowledge writer with the configured chunk sizes.
func BuildWriter(cfg *appconfig.Config, embedder embedding.Embedder, store knowledge.ChunkStore, logger *logging.Logger) *knowledge.Writer {
	chunker := knowledge.NewChunker(knowledge.ChunkerConfig{
		MaxTokens:     cfg.ChunkMaxTokens,
		MinTokens:     cfg.ChunkMinTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
	})
	return knowledge.NewWriter(chunker, embedder, store, logger,
		knowledge.WithBatchSize(cfg.EmbedBatchSize),
		knowledge.WithConcurrency(cfg.EmbedConcurrency),
	)
}
