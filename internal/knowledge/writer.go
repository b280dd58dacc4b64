package knowledge

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/botdesk/internal/bot"
	"github.com/wolfman30/botdesk/internal/embedding"
	"github.com/wolfman30/botdesk/pkg/logging"
)

// Writer rebuilds a bot's chunk set: chunk, embed, replace.
type Writer struct {
	chunker     *Chunker
	embedder    embedding.Embedder
	store       ChunkStore
	batchSize   int
	concurrency int
	logger      *logging.Logger
}

type WriterOption func(*Writer)

func WithBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithConcurrency(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func NewWriter(chunker *Chunker, embedder embedding.Embedder, store ChunkStore, logger *logging.Logger, opts ...WriterOption) *Writer {
	if embedder == nil {
		panic("knowledge: embedder required")
	}
	if store == nil {
		panic("knowledge: chunk store required")
	}
	if chunker == nil {
		chunker = NewChunker(DefaultChunkerConfig())
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Writer{
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		batchSize:   32,
		concurrency: 4,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reindex replaces the bot's chunks with a fresh set built from its current
// knowledge sources and returns how many were stored. Any failure leaves the
// previous set in place.
func (w *Writer) Reindex(ctx context.Context, b *bot.Bot) (int, error) {
	ctx, span := tracer.Start(ctx, "knowledge.reindex")
	defer span.End()
	span.SetAttributes(attribute.String("bot.id", b.ID))

	start := time.Now()
	chunks := w.chunker.Split(b.ID, CombineSources(b))
	if err := w.embed(ctx, chunks); err != nil {
		span.RecordError(err)
		return 0, err
	}
	if err := w.store.ReplaceChunks(ctx, b.ID, chunks); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("knowledge: replace chunks: %w", err)
	}

	span.SetAttributes(attribute.Int("knowledge.chunks", len(chunks)))
	w.logger.Info("knowledge reindexed",
		"bot_id", b.ID,
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return len(chunks), nil
}

// embed fills each chunk's Embedding, running batches concurrently. Batches
// write disjoint index ranges so no locking is needed.
func (w *Writer) embed(ctx context.Context, chunks []Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for lo := 0; lo < len(chunks); lo += w.batchSize {
		lo := lo
		hi := min(lo+w.batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, ch := range chunks[lo:hi] {
				texts = append(texts, ch.Text)
			}
			vecs, err := w.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("knowledge: embed batch %d-%d: %w", lo, hi, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("knowledge: embed batch %d-%d: %w", lo, hi, embedding.ErrCountMismatch)
			}
			for i, v := range vecs {
				chunks[lo+i].Embedding = v
			}
			return nil
		})
	}
	return g.Wait()
}
