package knowledge

import (
	"context"
	"strings"
	"sync"
	"time"
)

// keywordEmbedder maps texts onto a tiny bag-of-keywords vector.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

var embedKeywords = []string{"hour", "price", "park", "book"}

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(embedKeywords)+1)
		vec[len(embedKeywords)] = 0.01
		for k, kw := range embedKeywords {
			vec[k] = float32(strings.Count(lower, kw))
		}
		out[i] = vec
	}
	return out, nil
}

type failingStore struct {
	*MemoryStore
	searchErr  error
	replaceErr error
}

func (f *failingStore) Search(ctx context.Context, botID string, vec []float32, topK int) ([]Match, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.MemoryStore.Search(ctx, botID, vec, topK)
}

func (f *failingStore) ReplaceChunks(ctx context.Context, botID string, chunks []Chunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	return f.MemoryStore.ReplaceChunks(ctx, botID, chunks)
}
