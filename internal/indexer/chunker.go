// Package indexer turns catalog articles into embedded chunks and keeps the vector index, the
// chunk store and the keyword index in step with the catalog.
package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/manualbook/internal/metadata"
)

const (
	DefaultMinChunkSize          = 100
	DefaultMaxChunkSize          = 1000
	DefaultWholeArticleThreshold = 800
	minParagraphSize             = 20
	paragraphSeparator           = "\n\n"
)

// Piece is one chunk of article text.
type Piece struct {
	Text         string
	Index        int
	WholeArticle bool
}

// ArticleChunker splits article content into paragraph-aligned chunks. Sizes are in characters.
type ArticleChunker struct {
	minChunkSize          int
	maxChunkSize          int
	wholeArticleThreshold int
}

// NewArticleChunker creates a chunker; non-positive sizes use the defaults.
func NewArticleChunker(minChunkSize, maxChunkSize, wholeArticleThreshold int) *ArticleChunker {
	if minChunkSize <= 0 {
		minChunkSize = DefaultMinChunkSize
	}
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if wholeArticleThreshold <= 0 {
		wholeArticleThreshold = DefaultWholeArticleThreshold
	}
	return &ArticleChunker{
		minChunkSize:          minChunkSize,
		maxChunkSize:          maxChunkSize,
		wholeArticleThreshold: wholeArticleThreshold,
	}
}

// Chunk strips the metadata block from content and splits the rest. Short content is one whole
// chunk; longer content is grouped paragraph by paragraph up to the maximum size, skipping tiny
// paragraphs and dropping undersized groups. If nothing survives, the whole content is one chunk.
func (c *ArticleChunker) Chunk(content string) []Piece {
	text := metadata.Strip(content)
	whole := []Piece{{Text: text, Index: 0, WholeArticle: true}}
	if utf8.RuneCountInString(text) <= c.wholeArticleThreshold {
		return whole
	}

	var pieces []Piece
	var current []string
	size := 0
	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := strings.Join(current, paragraphSeparator)
		if utf8.RuneCountInString(joined) >= c.minChunkSize {
			pieces = append(pieces, Piece{Text: joined, Index: len(pieces)})
		}
		current, size = nil, 0
	}
	for _, para := range SplitParagraphs(text) {
		n := utf8.RuneCountInString(para)
		if n < minParagraphSize {
			continue
		}
		if size+n > c.maxChunkSize && len(current) > 0 {
			flush()
		}
		current = append(current, para)
		size += n
	}
	flush()

	if len(pieces) == 0 {
		return whole
	}
	return pieces
}
