package knowledge

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGVectorStore_ReplaceChunks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGVectorStore(mock)
	chunks := []Chunk{
		{ID: "c1", BotID: "bot-1", Text: "one", TokenCount: 250, Index: 0, Embedding: []float32{1, 0}},
		{ID: "c2", BotID: "bot-1", Text: "two", TokenCount: 300, Index: 1, Embedding: []float32{0, 1}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM knowledge_chunks").WithArgs("bot-1").WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("INSERT INTO knowledge_chunks").
		WithArgs("c1", "bot-1", 0, "one", 250, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO knowledge_chunks").
		WithArgs("c2", "bot-1", 1, "two", 300, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.ReplaceChunks(context.Background(), "bot-1", chunks))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_ReplaceChunksRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGVectorStore(mock)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM knowledge_chunks").WithArgs("bot-1").WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("INSERT INTO knowledge_chunks").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.ReplaceChunks(context.Background(), "bot-1", []Chunk{{ID: "c1", Text: "x", Embedding: []float32{1}}})
	assert.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorStore_Search(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "chunk_index", "content", "score"}).
		AddRow("c2", 1, "We open at 9am.", 0.91).
		AddRow("c1", 0, "Parking is free.", 0.42)
	mock.ExpectQuery("SELECT id, chunk_index, content").WithArgs("bot-1", pgxmock.AnyArg(), 3).WillReturnRows(rows)

	matches, err := NewPGVectorStore(mock).Search(context.Background(), "bot-1", []float32{0.1, 0.2}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "c2", matches[0].ChunkID)
	assert.InDelta(t, 0.91, matches[0].Score, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore_SearchRanksByCosine(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceChunks(ctx, "bot-1", []Chunk{
		{ID: "a", Text: "hours", Index: 0, Embedding: []float32{1, 0, 0}},
		{ID: "b", Text: "pricing", Index: 1, Embedding: []float32{0, 1, 0}},
		{ID: "c", Text: "hours and pricing", Index: 2, Embedding: []float32{0.7, 0.7, 0}},
	}))
	require.NoError(t, store.ReplaceChunks(ctx, "bot-2", []Chunk{
		{ID: "z", Text: "other tenant", Embedding: []float32{1, 0, 0}},
	}))

	matches, err := store.Search(ctx, "bot-1", []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ChunkID)
	assert.Equal(t, "c", matches[1].ChunkID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

	none, err := store.Search(ctx, "bot-3", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_ReplaceIsWholesale(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceChunks(ctx, "bot-1", []Chunk{{ID: "a", Embedding: []float32{1}}, {ID: "b", Embedding: []float32{1}}}))
	require.NoError(t, store.ReplaceChunks(ctx, "bot-1", []Chunk{{ID: "c", Embedding: []float32{1}}}))
	assert.Equal(t, 1, store.Count("bot-1"))

	assert.Error(t, store.ReplaceChunks(ctx, "bot-1", []Chunk{{ID: "d"}}))
	assert.Equal(t, 1, store.Count("bot-1"), "failed replace must keep the previous set")
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
