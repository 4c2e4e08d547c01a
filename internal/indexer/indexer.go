package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/internal/embedding"
	"github.com/hyperjump/manualbook/internal/keyword"
	"github.com/hyperjump/manualbook/internal/llm"
	"github.com/hyperjump/manualbook/internal/models"
	"github.com/hyperjump/manualbook/internal/storage"
	"github.com/hyperjump/manualbook/internal/vector"
	"github.com/hyperjump/manualbook/pkg/utils"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of chunks embedded per backend call.
const DefaultBatchSize = 8

const (
	glossPrompt      = "Summarize the following manual excerpt in one sentence. Mention the task or concept it covers.\n\n%s"
	glossMaxTokens   = 80
	glossTemperature = 0.1
	glossInputChars  = 2000
)

// Catalog is the read side of the catalog used for indexing.
type Catalog interface {
	Index(ctx context.Context) (*catalog.Index, error)
	Get(ctx context.Context, id string) (*catalog.Article, error)
}

// Stats summarizes one vectorization run.
type Stats struct {
	BuildID           string        `json:"build_id"`
	TotalArticles     int           `json:"total_articles"`
	ProcessedArticles int           `json:"processed_articles"`
	FailedArticles    int           `json:"failed_articles"`
	TotalChunks       int           `json:"total_chunks"`
	StoredChunks      int           `json:"stored_chunks"`
	FailedBatches     int           `json:"failed_batches"`
	RemovedArticles   int           `json:"removed_articles"`
	Reset             bool          `json:"reset"`
	Duration          time.Duration `json:"duration_ns"`
}

// Indexer vectorizes the catalog into the chunk store and vector index, and mirrors articles into
// the keyword index.
type Indexer struct {
	catalog      Catalog
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.ArticleIndex
	chunker      *ArticleChunker
	glosser      llm.Completer
	batchSize    int
	batchPause   time.Duration
	indexPath    string
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the indexer logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex mirrors articles into a keyword index.
func WithKeywordIndex(k keyword.ArticleIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithChunker replaces the default chunker.
func WithChunker(c *ArticleChunker) IndexerOption {
	return func(idx *Indexer) { idx.chunker = c }
}

// WithGlosser appends a one-sentence model summary to every chunk before embedding.
func WithGlosser(c llm.Completer) IndexerOption {
	return func(idx *Indexer) { idx.glosser = c }
}

// WithBatchSize sets the number of chunks per embedding call.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithBatchPause waits between embedding batches to stay under backend rate limits.
func WithBatchPause(d time.Duration) IndexerOption {
	return func(idx *Indexer) { idx.batchPause = d }
}

// WithIndexPath saves the vector index to path after each run.
func WithIndexPath(path string) IndexerOption {
	return func(idx *Indexer) { idx.indexPath = path }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(c Catalog, store storage.Storage, embedder embedding.Embedder, vectorIndex vector.VectorIndex, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		catalog:     c,
		storage:     store,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		chunker:     NewArticleChunker(0, 0, 0),
		batchSize:   DefaultBatchSize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Vectorize chunks every catalog article, embeds the chunks in batches and stores them in the
// chunk store and the vector index. With reset both are emptied first; otherwise each article's
// previous chunks are replaced and chunks of articles no longer in the catalog are removed.
// A failed article or batch is logged and counted; the run continues.
func (idx *Indexer) Vectorize(ctx context.Context, reset bool) (*Stats, error) {
	start := time.Now()
	index, err := idx.catalog.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	stats := &Stats{BuildID: index.BuildID, TotalArticles: len(index.Order), Reset: reset}

	if reset {
		if err := idx.reset(ctx); err != nil {
			return nil, err
		}
	} else {
		removed, err := idx.prune(ctx, index)
		if err != nil {
			return nil, err
		}
		stats.RemovedArticles = removed
	}

	var chunks []*models.Chunk
	for _, id := range index.Order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		article, err := idx.catalog.Get(ctx, id)
		if err != nil {
			idx.logger.Warn("failed to load article", zap.String("id", id), zap.Error(err))
			stats.FailedArticles++
			continue
		}
		if !reset {
			if err := idx.removeArticle(ctx, id); err != nil {
				return nil, err
			}
		}
		chunks = append(chunks, idx.chunkArticle(ctx, article)...)
		stats.ProcessedArticles++
	}
	stats.TotalChunks = len(chunks)
	idx.logger.Info("vectorizing catalog",
		zap.String("build_id", index.BuildID),
		zap.Int("articles", stats.ProcessedArticles),
		zap.Int("chunks", stats.TotalChunks))

	for i := 0; i < len(chunks); i += idx.batchSize {
		end := min(i+idx.batchSize, len(chunks))
		if err := idx.storeBatch(ctx, chunks[i:end]); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			idx.logger.Warn("batch failed",
				zap.Int("batch", i/idx.batchSize+1),
				zap.Int("size", end-i),
				zap.Error(err))
			stats.FailedBatches++
		} else {
			stats.StoredChunks += end - i
		}
		if idx.batchPause > 0 && end < len(chunks) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(idx.batchPause):
			}
		}
	}

	if stats.FailedBatches == 0 && stats.FailedArticles == 0 {
		if err := idx.storage.SetState(ctx, storage.StateVectorBuildID, index.BuildID); err != nil {
			return nil, fmt.Errorf("record vector build: %w", err)
		}
	}
	if idx.indexPath != "" {
		if err := idx.vectorIndex.Save(idx.indexPath); err != nil {
			return nil, fmt.Errorf("save vector index: %w", err)
		}
	}
	stats.Duration = time.Since(start)
	idx.logger.Info("vectorization finished",
		zap.Int("stored_chunks", stats.StoredChunks),
		zap.Int("failed_batches", stats.FailedBatches),
		zap.Int("failed_articles", stats.FailedArticles),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

func (idx *Indexer) chunkArticle(ctx context.Context, a *catalog.Article) []*models.Chunk {
	pieces := idx.chunker.Chunk(a.Content)
	out := make([]*models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		meta := ChunkMetadata(a, p.Index, len(pieces))
		text := p.Text
		if gloss := idx.gloss(ctx, text); gloss != "" {
			text = strings.TrimSpace(text) + "\n\nSummary: " + gloss
			meta["gloss"] = gloss
		}
		out = append(out, &models.Chunk{
			ID:         ChunkID(a.ID, p.Index),
			ArticleID:  a.ID,
			ChunkIndex: p.Index,
			Content:    text,
			Metadata:   meta,
		})
	}
	return out
}

func (idx *Indexer) gloss(ctx context.Context, text string) string {
	if idx.glosser == nil {
		return ""
	}
	summary, err := idx.glosser.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(glossPrompt, Preprocess(utils.Prefix(text, glossInputChars))),
		Temperature: glossTemperature,
		MaxTokens:   glossMaxTokens,
	})
	if err != nil {
		idx.logger.Debug("gloss generation failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(summary)
}

func (idx *Indexer) storeBatch(ctx context.Context, batch []*models.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
	}
	for i := range batch {
		batch[i].Embedding = vectors[i]
	}
	if err := idx.storage.UpsertChunks(ctx, batch); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return idx.upsertVectors(ctx, batch)
}

func (idx *Indexer) upsertVectors(ctx context.Context, batch []*models.Chunk) error {
	ids := make([]string, len(batch))
	vectors := make([][]float32, len(batch))
	docs := make([]string, len(batch))
	metas := make([]vector.Metadata, len(batch))
	for i, c := range batch {
		ids[i], vectors[i], docs[i], metas[i] = c.ID, c.Embedding, c.Content, vector.Metadata(c.Metadata)
	}
	if err := idx.vectorIndex.Upsert(ctx, ids, vectors, docs, metas); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	return nil
}

func (idx *Indexer) reset(ctx context.Context) error {
	if err := idx.vectorIndex.Reset(ctx); err != nil {
		return fmt.Errorf("reset vector index: %w", err)
	}
	if err := idx.storage.Reset(ctx); err != nil {
		return fmt.Errorf("reset chunk store: %w", err)
	}
	return nil
}

// prune removes chunks of articles that are no longer in the catalog.
func (idx *Indexer) prune(ctx context.Context, index *catalog.Index) (int, error) {
	chunks, err := idx.storage.AllChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored chunks: %w", err)
	}
	stale := make(map[string]bool)
	for _, c := range chunks {
		if _, ok := index.Articles[c.ArticleID]; !ok {
			stale[c.ArticleID] = true
		}
	}
	for id := range stale {
		if err := idx.removeArticle(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func (idx *Indexer) removeArticle(ctx context.Context, articleID string) error {
	chunks, err := idx.storage.ChunksByArticle(ctx, articleID)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := idx.vectorIndex.Remove(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if err := idx.storage.DeleteChunksByArticle(ctx, articleID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Restore reloads the vector index from the chunk store, skipping chunks without embeddings.
// It returns the number of vectors loaded.
func (idx *Indexer) Restore(ctx context.Context) (int, error) {
	chunks, err := idx.storage.AllChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored chunks: %w", err)
	}
	embedded := chunks[:0]
	for _, c := range chunks {
		if len(c.Embedding) > 0 {
			embedded = append(embedded, c)
		}
	}
	if err := idx.vectorIndex.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset vector index: %w", err)
	}
	if len(embedded) == 0 {
		return 0, nil
	}
	if err := idx.upsertVectors(ctx, embedded); err != nil {
		return 0, err
	}
	idx.logger.Info("vector index restored from chunk store", zap.Int("vectors", len(embedded)))
	return len(embedded), nil
}

// IndexKeywords replaces the keyword index contents with the current catalog articles. It is a
// no-op without a keyword index.
func (idx *Indexer) IndexKeywords(ctx context.Context) (int, error) {
	if idx.keywordIndex == nil {
		return 0, nil
	}
	index, err := idx.catalog.Index(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	articles := make([]*catalog.Article, 0, len(index.Order))
	for _, id := range index.Order {
		a, err := idx.catalog.Get(ctx, id)
		if err != nil {
			idx.logger.Warn("skipping article for keyword index", zap.String("id", id), zap.Error(err))
			continue
		}
		articles = append(articles, a)
	}
	if err := idx.keywordIndex.Replace(ctx, articles); err != nil {
		return 0, fmt.Errorf("keyword index: %w", err)
	}
	return len(articles), nil
}

// VectorBuildID returns the catalog build id the stored vectors were produced from, or "" when
// no complete run is recorded.
func (idx *Indexer) VectorBuildID(ctx context.Context) (string, error) {
	id, err := idx.storage.GetState(ctx, storage.StateVectorBuildID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	return id, err
}

// ChunkID returns the vector id of an article chunk.
func ChunkID(articleID string, index int) string {
	return articleID + "__chunk_" + strconv.Itoa(index)
}

// ChunkMetadata returns the flat metadata stored with a chunk vector. Lists are joined with ";".
func ChunkMetadata(a *catalog.Article, chunkIndex, totalChunks int) map[string]string {
	level := a.HeadingLevel
	if level == 0 {
		level = 1
	}
	meta := map[string]string{
		"article_id":    a.ID,
		"title":         a.Title,
		"intent":        a.Intent,
		"category":      a.Category,
		"chunk_index":   strconv.Itoa(chunkIndex),
		"total_chunks":  strconv.Itoa(totalChunks),
		"parent_id":     a.ParentID,
		"has_children":  strconv.FormatBool(len(a.ChildrenIDs) > 0),
		"heading_level": strconv.Itoa(level),
	}
	if len(a.SeeAlsoIDs) > 0 {
		meta["see_also_ids"] = strings.Join(a.SeeAlsoIDs, ";")
	}
	if len(a.Images) > 0 {
		meta["images"] = strings.Join(a.Images, ";")
	}
	return meta
}
