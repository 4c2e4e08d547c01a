package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/internal/classifier"
	"github.com/hyperjump/manualbook/internal/config"
	"github.com/hyperjump/manualbook/internal/embedding"
	"github.com/hyperjump/manualbook/internal/indexer"
	"github.com/hyperjump/manualbook/internal/keyword"
	"github.com/hyperjump/manualbook/internal/llm"
	"github.com/hyperjump/manualbook/internal/retriever"
	"github.com/hyperjump/manualbook/internal/search"
	"github.com/hyperjump/manualbook/internal/storage"
	"github.com/hyperjump/manualbook/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Catalog      *catalog.Store
	Chunks       storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.VectorIndex
	KeywordIndex *keyword.BleveIndex
	Completer    llm.Completer
	Indexer      *indexer.Indexer
	Engine       *search.Engine
}

// Close releases storage and index handles.
func (c *Components) Close() {
	if c.Chunks != nil {
		_ = c.Chunks.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	storeOpts := []catalog.StoreOption{catalog.WithLogger(logger)}
	if cfg.Catalog.Cache {
		storeOpts = append(storeOpts, catalog.WithCache())
	}
	store, err := catalog.NewStore(cfg.Catalog.Dir, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	c.Catalog = store

	chunks, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Chunks = chunks

	completer, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey(),
		Model:       cfg.LLM.Model,
		MaxAttempts: cfg.LLM.MaxAttempts,
		RetryDelay:  cfg.LLM.RetryDelay,
		Timeout:     cfg.LLM.Timeout,
	}, llm.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}
	c.Completer = completer

	var embedder embedding.Embedder
	embedder, err = embedding.NewOpenAIEmbedder(embedding.Config{
		BaseURL:     cfg.Embedding.BaseURL,
		APIKey:      cfg.Embedding.APIKey(),
		Model:       cfg.Embedding.Model,
		Dimensions:  cfg.Embedding.Dimensions,
		BatchSize:   cfg.Embedding.BatchSize,
		MaxAttempts: cfg.LLM.MaxAttempts,
		RetryDelay:  cfg.LLM.RetryDelay,
	}, embedding.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}
	c.Embedder = embedder

	vectorIndex, err := vector.NewVectorIndex(cfg.Vector.Type, cfg.Vector.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.VectorIndex = vectorIndex

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.KeywordIndex = keywordIndex

	idxOpts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithKeywordIndex(keywordIndex),
		indexer.WithChunker(indexer.NewArticleChunker(cfg.Chunking.MinSize, cfg.Chunking.MaxSize, cfg.Chunking.WholeArticle)),
		indexer.WithBatchSize(cfg.Chunking.BatchSize),
		indexer.WithBatchPause(cfg.Chunking.BatchPause),
		indexer.WithIndexPath(cfg.Storage.VectorIndexPath),
	}
	if cfg.Chunking.Gloss {
		idxOpts = append(idxOpts, indexer.WithGlosser(completer))
	}
	c.Indexer = indexer.NewIndexer(store, chunks, embedder, vectorIndex, idxOpts...)

	if err := vectorIndex.Load(cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector index load failed, restoring from chunk store",
			zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
	if vectorIndex.Size() == 0 {
		if n, err := c.Indexer.Restore(ctx); err != nil {
			logger.Warn("vector index restore failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("vector index restored", zap.Int("vectors", n))
		}
	}

	retOpts := []retriever.Option{
		retriever.WithLogger(logger),
		retriever.WithTopK(cfg.Retrieval.TopK),
		retriever.WithIncludeRelated(cfg.Retrieval.IncludeRelatedOrDefault()),
		retriever.WithFallback(cfg.Retrieval.FallbackOrDefault()),
	}
	if len(cfg.Retrieval.DomainTerms) > 0 {
		retOpts = append(retOpts, retriever.WithDomainTerms(cfg.Retrieval.DomainTerms))
	}
	ret := retriever.New(store, embedder, vectorIndex, retOpts...)
	cls := classifier.New(completer, classifier.WithLogger(logger))

	c.Engine = search.NewEngine(store, cls, ret,
		search.WithLogger(logger),
		search.WithIndexer(c.Indexer),
		search.WithKeywordIndex(keywordIndex, keyword.NewSuggester(keywordIndex)),
		search.WithAnswerer(completer, cfg.Retrieval.AnswerMaxChars),
		search.WithChunkStore(chunks),
		search.WithSource(cfg.Catalog.Source),
		search.WithMaxContent(cfg.Retrieval.MaxContent),
		search.WithAutoVectorize(true),
		search.WithDiskPaths(cfg.Catalog.Dir, cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.VectorIndexPath),
	)
	ok = true
	return c, nil
}
