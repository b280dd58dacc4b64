package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/botdesk/internal/embedding"
	"github.com/wolfman30/botdesk/pkg/logging"
)

var tracer = otel.Tracer("botdesk.internal.knowledge")

const DefaultTopK = 5

var retrievalTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "botdesk",
		Subsystem: "knowledge",
		Name:      "retrievals_total",
		Help:      "Knowledge retrievals by outcome",
	},
	[]string{"outcome"}, // hit, empty, embed_error, search_error, timeout
)

var retrievalLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "botdesk",
		Subsystem: "knowledge",
		Name:      "retrieval_latency_seconds",
		Help:      "Latency of embed plus similarity search",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	},
)

func init() {
	prometheus.MustRegister(retrievalTotal, retrievalLatency)
}

// RegisterMetrics registers retrieval metrics with a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(retrievalTotal, retrievalLatency)
}

// Retriever embeds a query and searches one bot's chunks.
type Retriever struct {
	embedder embedding.Embedder
	store    ChunkStore
	timeout  time.Duration
	logger   *logging.Logger
}

func NewRetriever(embedder embedding.Embedder, store ChunkStore, timeout time.Duration, logger *logging.Logger) *Retriever {
	if embedder == nil {
		panic("knowledge: embedder required")
	}
	if store == nil {
		panic("knowledge: chunk store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Retriever{embedder: embedder, store: store, timeout: timeout, logger: logger}
}

// Retrieve returns up to topK chunks of botID ordered best first. It never
// fails: embedding errors, search errors and timeouts all yield an empty
// result so the chat turn can continue without knowledge.
func (r *Retriever) Retrieve(ctx context.Context, botID, query string, topK int) []Match {
	if topK <= 0 {
		topK = DefaultTopK
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Match{}
	}

	ctx, span := tracer.Start(ctx, "knowledge.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("bot.id", botID), attribute.Int("knowledge.top_k", topK))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	defer func() { retrievalLatency.Observe(time.Since(start).Seconds()) }()

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err == nil && len(vecs) != 1 {
		err = embedding.ErrCountMismatch
	}
	if err != nil {
		r.fail(ctx, "embed_error", botID, err)
		return []Match{}
	}

	matches, err := r.store.Search(ctx, botID, vecs[0], topK)
	if err != nil {
		r.fail(ctx, "search_error", botID, err)
		return []Match{}
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if len(matches) == 0 {
		retrievalTotal.WithLabelValues("empty").Inc()
		return []Match{}
	}
	retrievalTotal.WithLabelValues("hit").Inc()
	span.SetAttributes(attribute.Int("knowledge.matches", len(matches)))
	return matches
}

func (r *Retriever) fail(ctx context.Context, outcome, botID string, err error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome = "timeout"
	}
	retrievalTotal.WithLabelValues(outcome).Inc()
	r.logger.Warn("knowledge retrieval degraded to empty", "bot_id", botID, "outcome", outcome, "error", err)
}

// Texts flattens matches to their chunk text.
func Texts(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Text)
	}
	return out
}
