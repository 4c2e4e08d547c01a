// Package search ties the catalog, classifier, retriever, keyword index and vectorizer together
// behind the operations exposed by the HTTP API and the CLI.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/internal/classifier"
	"github.com/hyperjump/manualbook/internal/indexer"
	"github.com/hyperjump/manualbook/internal/keyword"
	"github.com/hyperjump/manualbook/internal/llm"
	"github.com/hyperjump/manualbook/internal/metadata"
	"github.com/hyperjump/manualbook/internal/models"
	"github.com/hyperjump/manualbook/internal/retriever"
	"github.com/hyperjump/manualbook/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrKeywordDisabled is returned by Find when no keyword index is configured.
	ErrKeywordDisabled = errors.New("keyword index not configured")
	// ErrVectorizeDisabled is returned by Vectorize when no indexer is configured.
	ErrVectorizeDisabled = errors.New("vectorizer not configured")
)

const (
	// DefaultFindLimit is used when a keyword lookup does not set a limit.
	DefaultFindLimit = 10
	// MaxBatchIDs caps the ids accepted by one ArticlesByID call.
	MaxBatchIDs = 50
)

// BuildResult summarizes a catalog build and the index refreshes that followed it.
type BuildResult struct {
	Catalog         *catalog.BuildStats `json:"catalog"`
	KeywordArticles int                 `json:"keyword_articles"`
	Vectors         *indexer.Stats      `json:"vectors,omitempty"`
}

// Engine runs catalog queries, lookups and rebuilds.
type Engine struct {
	catalog    *catalog.Store
	classifier *classifier.Classifier
	retriever  *retriever.Retriever

	indexer        *indexer.Indexer
	keywordIndex   keyword.ArticleIndex
	suggester      *keyword.Suggester
	answerer       llm.Completer
	answerMaxChars int
	chunks         storage.Storage
	source         string
	maxContent     int
	autoVectorize  bool
	diskPaths      []string
	logger         *zap.Logger

	buildMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithIndexer enables vectorization and keyword index refreshes after builds.
func WithIndexer(idx *indexer.Indexer) EngineOption {
	return func(e *Engine) { e.indexer = idx }
}

// WithKeywordIndex enables keyword lookups. s may be nil to disable spelling correction.
func WithKeywordIndex(k keyword.ArticleIndex, s *keyword.Suggester) EngineOption {
	return func(e *Engine) {
		e.keywordIndex = k
		e.suggester = s
	}
}

// WithAnswerer enables answer synthesis; maxChars bounds each article in the model context.
func WithAnswerer(c llm.Completer, maxChars int) EngineOption {
	return func(e *Engine) {
		e.answerer = c
		e.answerMaxChars = maxChars
	}
}

// WithChunkStore reports chunk counts and vector freshness in Status.
func WithChunkStore(s storage.Storage) EngineOption {
	return func(e *Engine) { e.chunks = s }
}

// WithSource sets the default source document for builds.
func WithSource(path string) EngineOption {
	return func(e *Engine) { e.source = path }
}

// WithMaxContent truncates article content in query responses (0 keeps it whole).
func WithMaxContent(n int) EngineOption {
	return func(e *Engine) { e.maxContent = n }
}

// WithAutoVectorize makes Rebuild vectorize after every catalog build.
func WithAutoVectorize(b bool) EngineOption {
	return func(e *Engine) { e.autoVectorize = b }
}

// WithDiskPaths lists the files and directories whose size Status reports.
func WithDiskPaths(paths ...string) EngineOption {
	return func(e *Engine) { e.diskPaths = paths }
}

// NewEngine creates an engine. cls may be nil, in which case queries are not classified.
func NewEngine(store *catalog.Store, cls *classifier.Classifier, ret *retriever.Retriever, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:    store,
		classifier: cls,
		retriever:  ret,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query classifies the request, retrieves matching articles and optionally synthesizes an answer.
func (e *Engine) Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cls, err := e.classification(ctx, req)
	if err != nil {
		return nil, err
	}

	results := e.retriever.Retrieve(ctx, req.Query, retriever.Options{
		Classification: cls,
		TopK:           req.TopK,
		IncludeRelated: req.IncludeRelated,
		Fallback:       req.Fallback,
	})
	resp := &models.QueryResponse{
		Query:          req.Query,
		Classification: cls,
		Results:        models.FromResults(results, e.maxContent),
		Total:          len(results),
	}

	if req.Answer && e.answerer != nil && len(results) > 0 {
		answer, err := llm.GenerateAnswer(ctx, e.answerer, req.Query, models.Sources(results), e.answerMaxChars)
		if err != nil {
			e.logger.Warn("answer synthesis failed", zap.String("query", req.Query), zap.Error(err))
		} else {
			resp.Answer = answer
		}
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	e.logger.Debug("query served",
		zap.String("query", req.Query),
		zap.Int("results", resp.Total),
		zap.Int64("ms", resp.QueryTime))
	return resp, nil
}

// classification returns the query classification with any explicit intent/category overrides
// applied. It is nil when classification is skipped and nothing is overridden.
func (e *Engine) classification(ctx context.Context, req *models.QueryRequest) (*classifier.Result, error) {
	if req.Intent != "" && !metadata.ValidIntent(req.Intent) {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrInvalidRequest, req.Intent)
	}
	if req.Category != "" && !metadata.ValidCategory(req.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, req.Category)
	}

	var cls *classifier.Result
	if !req.SkipClassify && e.classifier != nil {
		r := e.classifier.Classify(ctx, req.Query)
		cls = &r
	}
	if req.Intent == "" && req.Category == "" {
		return cls, nil
	}
	if cls == nil {
		cls = &classifier.Result{Category: classifier.CategoryUnknown, Topics: []string{}, Confidence: 1}
	}
	if req.Intent != "" {
		cls.Intent = req.Intent
	}
	if req.Category != "" {
		cls.Category = req.Category
	}
	return cls, nil
}

// Classify classifies a single query or a batch.
func (e *Engine) Classify(ctx context.Context, req *models.ClassifyRequest) (*models.ClassifyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	queries := req.Queries
	if req.Query != "" {
		queries = append([]string{req.Query}, queries...)
	}
	resp := &models.ClassifyResponse{Results: make([]models.ClassifiedQuery, 0, len(queries))}
	var results []classifier.Result
	if e.classifier != nil {
		results = e.classifier.ClassifyBatch(ctx, queries)
	}
	for i, q := range queries {
		r := classifier.Default()
		if i < len(results) {
			r = results[i]
		}
		resp.Results = append(resp.Results, models.ClassifiedQuery{Query: q, Classification: r})
	}
	return resp, nil
}

// Articles lists catalog entries matching f in document order.
func (e *Engine) Articles(ctx context.Context, f catalog.Filter) (*models.ArticleListResponse, error) {
	entries, err := e.catalog.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*catalog.Entry{}
	}
	return &models.ArticleListResponse{Articles: entries, Total: len(entries)}, nil
}

// Article returns one article with its related articles.
func (e *Engine) Article(ctx context.Context, id string) (*models.ArticleResult, error) {
	res, err := e.retriever.RetrieveByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	out := models.FromResult(*res, 0)
	return &out, nil
}

// ArticlesByID returns the articles among ids that exist, in request order, with their related
// articles. Unknown ids are reported in Missing.
func (e *Engine) ArticlesByID(ctx context.Context, ids []string) (*models.ArticleBatchResponse, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no article ids", ErrInvalidRequest)
	}
	if len(ids) > MaxBatchIDs {
		return nil, fmt.Errorf("%w: at most %d article ids", ErrInvalidRequest, MaxBatchIDs)
	}
	results := e.retriever.RetrieveByIDs(ctx, ids, true)
	found := make(map[string]bool, len(results))
	for _, r := range results {
		found[r.Article.ID] = true
	}
	missing := []string{}
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return &models.ArticleBatchResponse{
		Articles: models.FromResults(results, 0),
		Total:    len(results),
		Missing:  missing,
	}, nil
}

// Related returns the neighbours of id in the relationship graph.
func (e *Engine) Related(ctx context.Context, id string) (*models.RelatedRefs, error) {
	rel, err := e.catalog.Related(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.FromRelated(rel), nil
}

// Find runs a keyword lookup. When nothing matches and a suggester is configured, the query is
// spelling-corrected against the index vocabulary and retried once.
func (e *Engine) Find(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) (*models.FindResponse, error) {
	if e.keywordIndex == nil {
		return nil, ErrKeywordDisabled
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = DefaultFindLimit
	}
	hits, err := e.keywordIndex.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	resp := &models.FindResponse{Query: query}
	if len(hits) == 0 && e.suggester != nil {
		if corrected, ok := e.suggester.Correct(query); ok {
			hits, err = e.keywordIndex.Search(ctx, corrected, limit, opts)
			if err != nil {
				return nil, fmt.Errorf("keyword search: %w", err)
			}
			if len(hits) > 0 {
				resp.Corrected = corrected
			}
		}
	}
	resp.Hits = make([]models.FindHit, 0, len(hits))
	for _, h := range hits {
		resp.Hits = append(resp.Hits, models.FindHit{
			ID:       h.ID,
			Title:    h.Title,
			Intent:   h.Intent,
			Category: h.Category,
			Score:    h.Score,
		})
	}
	resp.Total = len(resp.Hits)
	return resp, nil
}

// Build rebuilds the catalog from req.Source (or the configured source), refreshes the keyword
// index and, when requested, vectorizes the new catalog. Builds are serialized.
func (e *Engine) Build(ctx context.Context, req *models.BuildRequest) (*BuildResult, error) {
	source := req.Source
	if source == "" {
		source = e.source
	}
	if source == "" {
		return nil, fmt.Errorf("%w: no source document", ErrInvalidRequest)
	}
	clean := true
	if req.Clean != nil {
		clean = *req.Clean
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	stats, err := e.catalog.Build(ctx, source, clean)
	if err != nil {
		return nil, err
	}
	res := &BuildResult{Catalog: stats}
	if e.indexer == nil {
		return res, nil
	}

	n, err := e.indexer.IndexKeywords(ctx)
	if err != nil {
		e.logger.Warn("keyword index refresh failed", zap.Error(err))
	}
	res.KeywordArticles = n
	if e.suggester != nil {
		if err := e.suggester.Refresh(); err != nil {
			e.logger.Warn("suggester refresh failed", zap.Error(err))
		}
	}
	if req.Vectorize {
		vs, err := e.indexer.Vectorize(ctx, false)
		if err != nil {
			return res, fmt.Errorf("vectorize: %w", err)
		}
		res.Vectors = vs
	}
	return res, nil
}

// Source returns the configured source document, or "" when none is set.
func (e *Engine) Source() string { return e.source }

// Rebuild rebuilds from the configured source. It is the watcher callback.
func (e *Engine) Rebuild(ctx context.Context) error {
	_, err := e.Build(ctx, &models.BuildRequest{Vectorize: e.autoVectorize})
	return err
}

// Vectorize chunks and embeds the current catalog.
func (e *Engine) Vectorize(ctx context.Context, reset bool) (*indexer.Stats, error) {
	if e.indexer == nil {
		return nil, ErrVectorizeDisabled
	}
	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	return e.indexer.Vectorize(ctx, reset)
}

// Status reports catalog, chunk store and keyword index state.
func (e *Engine) Status(ctx context.Context) (*models.StatusResponse, error) {
	resp := &models.StatusResponse{CatalogExists: e.catalog.Exists()}
	if resp.CatalogExists {
		st, err := e.catalog.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog stats: %w", err)
		}
		resp.BuildID = st.BuildID
		resp.SourceFile = st.SourceFile
		resp.TotalArticles = st.TotalArticles
		resp.ByIntent = st.ByIntent
		resp.ByCategory = st.ByCategory
	}
	if e.chunks != nil {
		n, err := e.chunks.CountChunks(ctx)
		if err != nil {
			return nil, fmt.Errorf("count chunks: %w", err)
		}
		resp.IndexedChunks = n
	}
	if e.indexer != nil {
		id, err := e.indexer.VectorBuildID(ctx)
		if err != nil {
			return nil, fmt.Errorf("vector build id: %w", err)
		}
		resp.VectorBuildID = id
		resp.VectorsStale = resp.CatalogExists && id != resp.BuildID
	}
	if e.keywordIndex != nil {
		n, err := e.keywordIndex.DocCount()
		if err != nil {
			e.logger.Warn("keyword doc count failed", zap.Error(err))
		}
		resp.KeywordDocs = n
	}
	if len(e.diskPaths) > 0 {
		n, err := storage.DiskUsageBytes(e.diskPaths...)
		if err != nil {
			e.logger.Warn("disk usage failed", zap.Error(err))
		}
		resp.DiskUsageBytes = n
	}
	return resp, nil
}

// uniqueIDs trims ids and drops blanks and repeats, keeping first occurrences.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
