package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Match is one retrieved chunk, best matches carry the highest Score.
type Match struct {
	ChunkID string  `json:"chunk_id"`
	Index   int     `json:"index"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// ChunkStore persists embedded chunks and runs similarity search scoped to
// one bot.
type ChunkStore interface {
	// ReplaceChunks swaps the bot's whole chunk set atomically.
	ReplaceChunks(ctx context.Context, botID string, chunks []Chunk) error
	Search(ctx context.Context, botID string, vector []float32, topK int) ([]Match, error)
}

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGVectorStore keeps chunks in Postgres with a pgvector embedding column.
type PGVectorStore struct {
	pool pgxPool
}

func NewPGVectorStore(pool pgxPool) *PGVectorStore {
	if pool == nil {
		panic("knowledge: pgx pool required")
	}
	return &PGVectorStore{pool: pool}
}

func (s *PGVectorStore) ReplaceChunks(ctx context.Context, botID string, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("knowledge: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks WHERE bot_id = $1`, botID); err != nil {
		return fmt.Errorf("knowledge: delete chunks: %w", err)
	}
	const insert = `
		INSERT INTO knowledge_chunks (id, bot_id, chunk_index, content, token_count, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return fmt.Errorf("knowledge: chunk %d has no embedding", ch.Index)
		}
		if _, err := tx.Exec(ctx, insert, ch.ID, botID, ch.Index, ch.Text, ch.TokenCount, pgvector.NewVector(ch.Embedding)); err != nil {
			return fmt.Errorf("knowledge: insert chunk %d: %w", ch.Index, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("knowledge: commit chunks: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Search(ctx context.Context, botID string, vector []float32, topK int) ([]Match, error) {
	const q = `
		SELECT id, chunk_index, content, 1 - (embedding <=> $2) AS score
		FROM knowledge_chunks
		WHERE bot_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, q, botID, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.Index, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("knowledge: scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MemoryStore keeps chunks in process and ranks by cosine similarity.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string][]Chunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string][]Chunk)}
}

func (s *MemoryStore) ReplaceChunks(_ context.Context, botID string, chunks []Chunk) error {
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return errors.New("knowledge: chunk without embedding")
		}
	}
	copied := append([]Chunk(nil), chunks...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[botID] = copied
	return nil
}

func (s *MemoryStore) Search(_ context.Context, botID string, vector []float32, topK int) ([]Match, error) {
	s.mu.RLock()
	candidates := s.chunks[botID]
	s.mu.RUnlock()

	out := make([]Match, 0, len(candidates))
	for _, ch := range candidates {
		out = append(out, Match{
			ChunkID: ch.ID,
			Index:   ch.Index,
			Text:    ch.Text,
			Score:   cosineSimilarity(vector, ch.Embedding),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Count returns how many chunks a bot currently has.
func (s *MemoryStore) Count(botID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[botID])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
