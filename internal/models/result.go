package models

import (
	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/internal/classifier"
	"github.com/hyperjump/manualbook/internal/llm"
	"github.com/hyperjump/manualbook/internal/retriever"
	"github.com/hyperjump/manualbook/pkg/utils"
)

// ArticleRef is the short form of an article used in relationship listings.
type ArticleRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Intent   string `json:"intent"`
	Category string `json:"category"`
}

// RelatedRefs lists an article's neighbours in the relationship graph.
type RelatedRefs struct {
	Parent   *ArticleRef  `json:"parent,omitempty"`
	Children []ArticleRef `json:"children"`
	SeeAlso  []ArticleRef `json:"see_also"`
	Siblings []ArticleRef `json:"siblings"`
}

// ArticleResult is one article in a query response.
type ArticleResult struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Intent         string       `json:"intent"`
	Category       string       `json:"category"`
	HeadingLevel   int          `json:"heading_level"`
	Content        string       `json:"content"`
	Images         []string     `json:"images,omitempty"`
	Score          float64      `json:"score"`
	RelevanceScore float64      `json:"relevance_score"`
	IsRelevant     bool         `json:"is_relevant"`
	Related        *RelatedRefs `json:"related,omitempty"`
}

// QueryResponse is the response for a query request.
type QueryResponse struct {
	Query          string             `json:"query"`
	Classification *classifier.Result `json:"classification,omitempty"`
	Results        []ArticleResult    `json:"results"`
	Total          int                `json:"total"`
	Answer         string             `json:"answer,omitempty"`
	QueryTime      int64              `json:"query_time_ms"`
}

// ClassifyResponse holds one classification per requested query.
type ClassifyResponse struct {
	Results []ClassifiedQuery `json:"results"`
}

// ClassifiedQuery pairs a query with its classification.
type ClassifiedQuery struct {
	Query          string            `json:"query"`
	Classification classifier.Result `json:"classification"`
}

// ArticleListResponse is the response for catalog listing.
type ArticleListResponse struct {
	Articles []*catalog.Entry `json:"articles"`
	Total    int              `json:"total"`
}

// ArticleBatchResponse holds the articles fetched by id; ids not in the catalog are listed in Missing.
type ArticleBatchResponse struct {
	Articles []ArticleResult `json:"articles"`
	Total    int             `json:"total"`
	Missing  []string        `json:"missing"`
}

// FindHit is one keyword lookup match.
type FindHit struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Intent   string  `json:"intent"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// FindResponse is the response for a keyword lookup.
type FindResponse struct {
	Query     string    `json:"query"`
	Corrected string    `json:"corrected,omitempty"` // spelling-corrected query that produced Hits
	Hits      []FindHit `json:"hits"`
	Total     int       `json:"total"`
}

// StatusResponse reports catalog and vector index state.
type StatusResponse struct {
	CatalogExists  bool           `json:"catalog_exists"`
	BuildID        string         `json:"build_id,omitempty"`
	SourceFile     string         `json:"source_file,omitempty"`
	TotalArticles  int            `json:"total_articles"`
	ByIntent       map[string]int `json:"by_intent,omitempty"`
	ByCategory     map[string]int `json:"by_category,omitempty"`
	IndexedChunks  int64          `json:"indexed_chunks"`
	VectorBuildID  string         `json:"vector_build_id,omitempty"`
	VectorsStale   bool           `json:"vectors_stale"`
	KeywordDocs    uint64         `json:"keyword_docs"`
	DiskUsageBytes int64          `json:"disk_usage_bytes"`
}

// ErrorResponse is the JSON body of an API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RefFromArticle returns the short form of a.
func RefFromArticle(a *catalog.Article) ArticleRef {
	return ArticleRef{ID: a.ID, Title: a.Title, Intent: a.Intent, Category: a.Category}
}

// FromRelated converts hydrated neighbours to references. A nil input yields nil.
func FromRelated(r *catalog.Related) *RelatedRefs {
	if r == nil {
		return nil
	}
	out := &RelatedRefs{
		Children: refs(r.Children),
		SeeAlso:  refs(r.SeeAlso),
		Siblings: refs(r.Siblings),
	}
	if r.Parent != nil {
		p := RefFromArticle(r.Parent)
		out.Parent = &p
	}
	return out
}

func refs(articles []*catalog.Article) []ArticleRef {
	out := make([]ArticleRef, 0, len(articles))
	for _, a := range articles {
		out = append(out, RefFromArticle(a))
	}
	return out
}

// FromResult converts a retrieval result. Content is truncated to maxContent runes when positive.
func FromResult(r retriever.Result, maxContent int) ArticleResult {
	a := r.Article
	return ArticleResult{
		ID:             a.ID,
		Title:          a.Title,
		Intent:         a.Intent,
		Category:       a.Category,
		HeadingLevel:   a.HeadingLevel,
		Content:        utils.Truncate(a.Content, maxContent),
		Images:         a.Images,
		Score:          utils.Round3(r.Score),
		RelevanceScore: utils.Round3(r.RelevanceScore),
		IsRelevant:     r.IsRelevant,
		Related:        FromRelated(r.Related),
	}
}

// FromResults converts a result list, never returning nil.
func FromResults(results []retriever.Result, maxContent int) []ArticleResult {
	out := make([]ArticleResult, 0, len(results))
	for _, r := range results {
		out = append(out, FromResult(r, maxContent))
	}
	return out
}

// Sources turns retrieval results into answer-synthesis context.
func Sources(results []retriever.Result) []llm.Source {
	out := make([]llm.Source, 0, len(results))
	for _, r := range results {
		a := r.Article
		src := llm.Source{
			ID:       a.ID,
			Title:    a.Title,
			Intent:   a.Intent,
			Category: a.Category,
			Score:    r.Score,
			Content:  a.Content,
		}
		if r.Related != nil {
			if r.Related.Parent != nil {
				src.Parent = r.Related.Parent.Title
			}
			for _, c := range r.Related.Children {
				src.Children = append(src.Children, c.Title)
			}
			for _, s := range r.Related.SeeAlso {
				src.SeeAlso = append(src.SeeAlso, s.Title)
			}
		}
		out = append(out, src)
	}
	return out
}
