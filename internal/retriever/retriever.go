// Package retriever implements hybrid catalog retrieval: query expansion from catalog synonyms
// and codes, metadata-filtered vector search over article chunks, per-article deduplication,
// title/id boosting, lexical relevance gating and an intent fallback pass.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/internal/classifier"
	"github.com/hyperjump/manualbook/internal/embedding"
	"github.com/hyperjump/manualbook/internal/metadata"
	"github.com/hyperjump/manualbook/internal/vector"
	"go.uber.org/zap"
)

// Catalog is the read side of the catalog store used by the retriever.
type Catalog interface {
	Get(ctx context.Context, id string) (*catalog.Article, error)
	Related(ctx context.Context, id string) (*catalog.Related, error)
	Entries(ctx context.Context) ([]*catalog.Entry, error)
}

// Result is one retrieved article.
type Result struct {
	Article        *catalog.Article `json:"article"`
	Score          float64          `json:"score"`
	Related        *catalog.Related `json:"related,omitempty"`
	RelevanceScore float64          `json:"relevance_score"`
	IsRelevant     bool             `json:"is_relevant"`
}

// Options control one Retrieve call. Nil pointers fall back to the retriever defaults.
type Options struct {
	Classification *classifier.Result
	TopK           int
	IncludeRelated *bool
	Fallback       *bool
}

// Retriever runs the retrieval pipeline against a catalog, an embedder and a vector index.
type Retriever struct {
	catalog        Catalog
	embedder       embedding.Embedder
	index          vector.VectorIndex
	tuning         Tuning
	topK           int
	includeRelated bool
	fallback       bool
	domainTerms    map[string]bool
	logger         *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the retriever logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithTuning replaces the scoring constants.
func WithTuning(t Tuning) Option {
	return func(r *Retriever) { r.tuning = t }
}

// WithTopK sets the default number of results (3).
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithIncludeRelated sets whether results carry related articles by default (true).
func WithIncludeRelated(b bool) Option {
	return func(r *Retriever) { r.includeRelated = b }
}

// WithFallback sets whether the intent fallback pass runs by default (true).
func WithFallback(b bool) Option {
	return func(r *Retriever) { r.fallback = b }
}

// WithDomainTerms replaces the technical vocabulary used by relevance gating.
func WithDomainTerms(terms []string) Option {
	return func(r *Retriever) { r.domainTerms = termSet(terms) }
}

// New creates a retriever.
func New(c Catalog, e embedding.Embedder, idx vector.VectorIndex, opts ...Option) *Retriever {
	r := &Retriever{
		catalog:        c,
		embedder:       e,
		index:          idx,
		tuning:         DefaultTuning(),
		topK:           3,
		includeRelated: true,
		fallback:       true,
		domainTerms:    termSet(DefaultDomainTerms),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to TopK articles for query, best first. Collaborator failures degrade to
// fewer (or no) results and are logged; Retrieve itself never fails.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) []Result {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.topK
	}
	includeRelated := r.includeRelated
	if opts.IncludeRelated != nil {
		includeRelated = *opts.IncludeRelated
	}
	fallback := r.fallback
	if opts.Fallback != nil {
		fallback = *opts.Fallback
	}

	entries, err := r.catalog.Entries(ctx)
	if err != nil {
		r.logger.Warn("catalog unavailable for expansion", zap.Error(err))
	}
	expanded := r.expand(query, entries)

	results := r.pass(ctx, query, expanded, buildFilter(opts.Classification), topK, includeRelated)
	if !fallback || opts.Classification == nil {
		return results
	}
	if len(results) > 0 && results[0].Score >= r.tuning.FallbackThreshold {
		return results
	}
	flipped, ok := flipIntent(opts.Classification.Intent)
	if !ok {
		return results
	}

	alt := *opts.Classification
	alt.Intent = flipped
	r.logger.Debug("running intent fallback",
		zap.String("query", query),
		zap.String("from", opts.Classification.Intent),
		zap.String("to", flipped))
	extra := r.pass(ctx, query, expanded, buildFilter(&alt), topK, includeRelated)
	return r.merge(query, results, extra, topK)
}

// pass runs expansion output through search, dedup, hydration, boosting and gating.
func (r *Retriever) pass(ctx context.Context, query, expanded string, filter vector.Filter, topK int, includeRelated bool) []Result {
	candidates := r.search(ctx, expanded, filter, topK*r.tuning.CandidateMultiplier)
	ranked := dedup(candidates)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]Result, 0, len(ranked))
	for _, c := range ranked {
		article, err := r.catalog.Get(ctx, c.articleID)
		if err != nil {
			r.logger.Warn("skipping unloadable article", zap.String("id", c.articleID), zap.Error(err))
			continue
		}
		res := Result{Article: article, Score: c.score}
		if includeRelated {
			res.Related = r.related(ctx, article.ID)
		}
		results = append(results, res)
	}

	for i := range results {
		results[i].Score = r.boost(query, results[i].Article, results[i].Score)
		r.gate(query, &results[i])
	}
	sortResults(results)
	return results
}

func (r *Retriever) search(ctx context.Context, query string, filter vector.Filter, k int) []*vector.Neighbor {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	hits, err := r.index.Query(ctx, vec, k, filter)
	if err != nil {
		r.logger.Warn("vector query failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	return hits
}

func (r *Retriever) related(ctx context.Context, id string) *catalog.Related {
	rel, err := r.catalog.Related(ctx, id)
	if err != nil {
		r.logger.Debug("related articles unavailable", zap.String("id", id), zap.Error(err))
		return nil
	}
	return rel
}

// merge keeps primary scores and admits unseen fallback articles at FallbackWeight.
func (r *Retriever) merge(query string, primary, extra []Result, topK int) []Result {
	seen := make(map[string]bool, len(primary))
	for _, res := range primary {
		seen[res.Article.ID] = true
	}
	merged := append([]Result(nil), primary...)
	for _, res := range extra {
		if seen[res.Article.ID] {
			continue
		}
		seen[res.Article.ID] = true
		res.Score *= r.tuning.FallbackWeight
		r.gate(query, &res)
		merged = append(merged, res)
	}
	sortResults(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// RetrieveByID returns the article with id at score 1.0.
func (r *Retriever) RetrieveByID(ctx context.Context, id string, includeRelated bool) (*Result, error) {
	article, err := r.catalog.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieve %q: %w", id, err)
	}
	res := &Result{Article: article, Score: 1.0, RelevanceScore: 1.0, IsRelevant: true}
	if includeRelated {
		res.Related = r.related(ctx, id)
	}
	return res, nil
}

// RetrieveByIDs returns the articles that exist among ids, in the given order.
func (r *Retriever) RetrieveByIDs(ctx context.Context, ids []string, includeRelated bool) []Result {
	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		res, err := r.RetrieveByID(ctx, id, includeRelated)
		if err != nil {
			r.logger.Debug("skipping missing article", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, *res)
	}
	return out
}

// buildFilter maps a classification to an intent/category metadata filter.
func buildFilter(c *classifier.Result) vector.Filter {
	if c == nil {
		return nil
	}
	var filters []vector.Filter
	if metadata.ValidIntent(c.Intent) {
		filters = append(filters, vector.Eq("intent", c.Intent))
	}
	if metadata.ValidCategory(c.Category) {
		filters = append(filters, vector.Eq("category", c.Category))
	}
	return vector.And(filters...)
}

func flipIntent(intent string) (string, bool) {
	switch intent {
	case metadata.IntentDo:
		return metadata.IntentLearn, true
	case metadata.IntentLearn:
		return metadata.IntentDo, true
	}
	return "", false
}

type candidate struct {
	articleID string
	score     float64
}

// dedup keeps each article's best chunk score, sorted descending; ties keep first-seen order.
func dedup(hits []*vector.Neighbor) []candidate {
	best := make(map[string]int)
	var out []candidate
	for _, h := range hits {
		id := h.Metadata["article_id"]
		if id == "" {
			continue
		}
		score := vector.ScoreFromDistance(h.Distance)
		if i, ok := best[id]; ok {
			if score > out[i].score {
				out[i].score = score
			}
			continue
		}
		best[id] = len(out)
		out = append(out, candidate{articleID: id, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

func termSet(terms []string) map[string]bool {
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			set[t] = true
		}
	}
	return set
}
