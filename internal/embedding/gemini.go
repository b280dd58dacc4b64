package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiEmbedder batches texts into one BatchEmbedContents call.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("embedding: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("embedding: create gemini client: %w", err)
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = "gemini-embedding-001"
	}
	return &GeminiEmbedder{client: client, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := g.client.EmbeddingModel(g.modelName)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("embedding: gemini batch embed: %w", err)
	}
	return vectorsFromGemini(resp, len(texts))
}

// vectorsFromGemini returns the batch vectors in request order.
func vectorsFromGemini(resp *genai.BatchEmbedContentsResponse, want int) ([][]float32, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: got no response want %d", ErrCountMismatch, want)
	}
	if len(resp.Embeddings) != want {
		return nil, fmt.Errorf("%w: got %d want %d", ErrCountMismatch, len(resp.Embeddings), want)
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("embedding: gemini returned an empty vector at %d", i)
		}
		out = append(out, e.Values)
	}
	return out, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
