// Package models defines the data structures shared by storage, the HTTP API and the CLI.
package models

import "time"

// Chunk is one vectorized slice of an article.
type Chunk struct {
	ID         string            `json:"id" db:"id"`
	ArticleID  string            `json:"article_id" db:"article_id"`
	ChunkIndex int               `json:"chunk_index" db:"chunk_index"`
	Content    string            `json:"content" db:"content"`
	Metadata   map[string]string `json:"metadata" db:"metadata"`
	Embedding  []float32         `json:"-" db:"embedding"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
