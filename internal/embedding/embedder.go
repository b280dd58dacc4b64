// Package embedding turns text into vectors for knowledge retrieval.
package embedding

import (
	"context"
	"errors"
)

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrCountMismatch is returned when a provider answers with a different
// number of vectors than texts sent.
var ErrCountMismatch = errors.New("embedding: vector count mismatch")
