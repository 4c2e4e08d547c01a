// Package embedding provides the embedding collaborator: an OpenAI-compatible embedder, a
// deterministic mock and an LRU cache for repeated query embeddings.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text. Every vector of one embedder has the same
// dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ServiceError reports a failed call to the embedding backend.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
