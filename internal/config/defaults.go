package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = "./manual.md"
	}
	if cfg.Catalog.Dir == "" {
		cfg.Catalog.Dir = "./data/catalog"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/db/chunks.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "./data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "./data/indices/vectors.bin"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 8
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.MaxAttempts == 0 {
		cfg.LLM.MaxAttempts = 3
	}
	if cfg.LLM.RetryDelay == 0 {
		cfg.LLM.RetryDelay = 2 * time.Second
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "memory"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = cfg.Embedding.Dimensions
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.AnswerMaxChars == 0 {
		cfg.Retrieval.AnswerMaxChars = 1000
	}
	if cfg.Retrieval.MaxContent == 0 {
		cfg.Retrieval.MaxContent = 2000
	}
	if cfg.Chunking.MinSize == 0 {
		cfg.Chunking.MinSize = 100
	}
	if cfg.Chunking.MaxSize == 0 {
		cfg.Chunking.MaxSize = 1000
	}
	if cfg.Chunking.WholeArticle == 0 {
		cfg.Chunking.WholeArticle = 800
	}
	if cfg.Chunking.BatchSize == 0 {
		cfg.Chunking.BatchSize = 8
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
