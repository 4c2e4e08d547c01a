// Package storage persists vectorized chunks so the vector index can be restored without
// re-embedding the catalog.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/manualbook/internal/models"
)

// ErrNotFound is returned when a chunk or state key does not exist.
var ErrNotFound = errors.New("not found")

// StateVectorBuildID records the catalog build id the stored chunks were produced from.
const StateVectorBuildID = "vector_build_id"

// Storage defines chunk persistence operations.
type Storage interface {
	// Chunk operations
	UpsertChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	ChunksByArticle(ctx context.Context, articleID string) ([]*models.Chunk, error)
	AllChunks(ctx context.Context) ([]*models.Chunk, error)
	DeleteChunksByArticle(ctx context.Context, articleID string) error
	Reset(ctx context.Context) error

	// State
	SetState(ctx context.Context, key, value string) error
	GetState(ctx context.Context, key string) (string, error)

	// Stats
	CountChunks(ctx context.Context) (int64, error)
	CountArticles(ctx context.Context) (int64, error)

	Close() error
}
