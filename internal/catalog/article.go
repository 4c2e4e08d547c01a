// Package catalog extracts articles from heading-structured markdown and persists them as a
// file catalog: one markdown file per article, an index document and a relationship graph.
package catalog

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrNotFound is returned when an article, the catalog or a source document does not exist.
var ErrNotFound = errors.New("not found")

// Article is one catalog entry: a metadata-tagged heading section plus any headless
// sub-sections merged into it.
type Article struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Intent       string   `json:"intent"`
	Category     string   `json:"category"`
	Content      string   `json:"content"`
	HeadingLevel int      `json:"heading_level"`
	ParentID     string   `json:"parent_id,omitempty"`
	ChildrenIDs  []string `json:"children_ids"`
	SeeAlsoIDs   []string `json:"see_also_ids"`
	Images       []string `json:"images"`
	Synonyms     []string `json:"synonyms"`
	Codes        []string `json:"codes"`
	WordCount    int      `json:"word_count"`
	CharCount    int      `json:"char_count"`
}

// Entry is the per-article record kept in the catalog index.
type Entry struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Intent       string   `json:"intent"`
	Category     string   `json:"category"`
	File         string   `json:"file"`
	HeadingLevel int      `json:"heading_level"`
	ParentID     string   `json:"parent_id,omitempty"`
	ChildrenIDs  []string `json:"children_ids"`
	SeeAlsoIDs   []string `json:"see_also_ids"`
	Images       []string `json:"images"`
	Synonyms     []string `json:"synonyms"`
	Codes        []string `json:"codes"`
	WordCount    int      `json:"word_count"`
	CharCount    int      `json:"char_count"`
}

// Related holds the hydrated neighbours of an article in the relationship graph.
type Related struct {
	Parent   *Article   `json:"parent,omitempty"`
	Children []*Article `json:"children"`
	SeeAlso  []*Article `json:"see_also"`
	Siblings []*Article `json:"siblings"`
}

// countWords returns whitespace-separated word count and character count of content.
func countWords(content string) (words, chars int) {
	return len(strings.Fields(content)), utf8.RuneCountInString(content)
}

func (a *Article) entry() *Entry {
	words, chars := countWords(a.Content)
	return &Entry{
		ID:           a.ID,
		Title:        a.Title,
		Intent:       a.Intent,
		Category:     a.Category,
		File:         articleFile(a.ID),
		HeadingLevel: a.HeadingLevel,
		ParentID:     a.ParentID,
		ChildrenIDs:  nonNil(a.ChildrenIDs),
		SeeAlsoIDs:   nonNil(a.SeeAlsoIDs),
		Images:       nonNil(a.Images),
		Synonyms:     nonNil(a.Synonyms),
		Codes:        nonNil(a.Codes),
		WordCount:    words,
		CharCount:    chars,
	}
}

// hydrate builds an Article from an index entry and the article file content.
func (e *Entry) hydrate(content string) *Article {
	return &Article{
		ID:           e.ID,
		Title:        e.Title,
		Intent:       e.Intent,
		Category:     e.Category,
		Content:      content,
		HeadingLevel: e.HeadingLevel,
		ParentID:     e.ParentID,
		ChildrenIDs:  append([]string(nil), e.ChildrenIDs...),
		SeeAlsoIDs:   append([]string(nil), e.SeeAlsoIDs...),
		Images:       append([]string(nil), e.Images...),
		Synonyms:     append([]string(nil), e.Synonyms...),
		Codes:        append([]string(nil), e.Codes...),
		WordCount:    e.WordCount,
		CharCount:    e.CharCount,
	}
}

func articleFile(id string) string {
	return "articles/" + id + ".md"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
