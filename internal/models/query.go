package models

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxQueryLength bounds a query in characters.
	MaxQueryLength = 1000
	// DefaultTopK is used when a request does not set top_k.
	DefaultTopK = 3
	// MaxTopK caps top_k.
	MaxTopK = 20
)

// QueryRequest asks for articles answering a natural-language query.
type QueryRequest struct {
	Query          string `json:"query"`
	TopK           int    `json:"top_k,omitempty"`
	Intent         string `json:"intent,omitempty"`   // overrides the classified intent
	Category       string `json:"category,omitempty"` // overrides the classified category
	IncludeRelated *bool  `json:"include_related,omitempty"`
	Fallback       *bool  `json:"fallback,omitempty"`
	SkipClassify   bool   `json:"skip_classify,omitempty"`
	Answer         bool   `json:"answer,omitempty"`
}

// Validate ensures the query is usable and normalizes top_k.
func (q *QueryRequest) Validate() error {
	if err := validateQuery(q.Query); err != nil {
		return err
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	return nil
}

// ClassifyRequest asks for the classification of one query or a batch.
type ClassifyRequest struct {
	Query   string   `json:"query,omitempty"`
	Queries []string `json:"queries,omitempty"`
}

// Validate requires either query or queries, each within MaxQueryLength.
func (c *ClassifyRequest) Validate() error {
	if c.Query == "" && len(c.Queries) == 0 {
		return fmt.Errorf("query cannot be empty")
	}
	if c.Query != "" {
		if err := validateQuery(c.Query); err != nil {
			return err
		}
	}
	for i, q := range c.Queries {
		if err := validateQuery(q); err != nil {
			return fmt.Errorf("queries[%d]: %w", i, err)
		}
	}
	return nil
}

// BuildRequest asks for a catalog rebuild.
type BuildRequest struct {
	Source    string `json:"source,omitempty"`
	Clean     *bool  `json:"clean,omitempty"`
	Vectorize bool   `json:"vectorize,omitempty"`
}

func validateQuery(q string) error {
	if q == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return fmt.Errorf("query exceeds %d characters", MaxQueryLength)
	}
	return nil
}
