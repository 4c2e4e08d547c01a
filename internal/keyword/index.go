// Package keyword provides a full-text index over catalog articles for direct lookup by title,
// synonym, product code or content words.
package keyword

import (
	"context"

	"github.com/hyperjump/manualbook/internal/catalog"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies matches in the title field. Values <= 0 use 3.0.
	TitleBoost float64
	// SynonymBoost multiplies matches in synonyms and codes. Values <= 0 use 2.0.
	SynonymBoost float64
	// Fuzziness is the maximum edit distance per term (0 disables fuzzy matching).
	Fuzziness int
	// Intent and Category restrict hits when set.
	Intent   string
	Category string
}

// ArticleIndex indexes articles and answers keyword lookups.
type ArticleIndex interface {
	// Replace makes the index hold exactly articles.
	Replace(ctx context.Context, articles []*catalog.Article) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error)
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single keyword search hit.
type Hit struct {
	ID       string
	Title    string
	Intent   string
	Category string
	Score    float64
}

// TermDictionary provides the indexed vocabulary for spelling suggestions.
type TermDictionary interface {
	// Terms returns every indexed term with its document frequency.
	Terms() (map[string]int, error)
}
