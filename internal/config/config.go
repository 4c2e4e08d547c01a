// Package config provides configuration loading and structs for manualbook.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CatalogConfig holds the source document and catalog output directory.
type CatalogConfig struct {
	Source string `yaml:"source"`
	Dir    string `yaml:"dir"`
	Cache  bool   `yaml:"cache"`
}

// StorageConfig holds paths for the chunk database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds settings for the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
}

// APIKey returns the key read from the configured environment variable.
func (e EmbeddingConfig) APIKey() string {
	return lookupEnv(e.APIKeyEnv)
}

// LLMConfig holds settings for the OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Temperature float64       `yaml:"temperature"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

// APIKey returns the key read from the configured environment variable.
func (l LLMConfig) APIKey() string {
	return lookupEnv(l.APIKeyEnv)
}

// VectorConfig selects the vector index implementation.
type VectorConfig struct {
	Type       string `yaml:"type"`
	Dimensions int    `yaml:"dimensions"`
}

// RetrievalConfig holds retriever defaults.
type RetrievalConfig struct {
	TopK           int      `yaml:"top_k"`
	IncludeRelated *bool    `yaml:"include_related"`
	Fallback       *bool    `yaml:"fallback"`
	DomainTerms    []string `yaml:"domain_terms"`
	Answer         bool     `yaml:"answer"`
	AnswerMaxChars int      `yaml:"answer_max_chars"`
	MaxContent     int      `yaml:"max_content"`
}

// IncludeRelatedOrDefault returns whether results carry related articles; defaults to true when unset.
func (r *RetrievalConfig) IncludeRelatedOrDefault() bool {
	if r.IncludeRelated != nil {
		return *r.IncludeRelated
	}
	return true
}

// FallbackOrDefault returns whether the intent fallback runs; defaults to true when unset.
func (r *RetrievalConfig) FallbackOrDefault() bool {
	if r.Fallback != nil {
		return *r.Fallback
	}
	return true
}

// ChunkingConfig holds vectorizer settings.
type ChunkingConfig struct {
	MinSize      int           `yaml:"min_size"`
	MaxSize      int           `yaml:"max_size"`
	WholeArticle int           `yaml:"whole_article"`
	BatchSize    int           `yaml:"batch_size"`
	BatchPause   time.Duration `yaml:"batch_pause"`
	Gloss        bool          `yaml:"gloss"`
}

// WatchConfig holds source watch settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, loads a sibling .env file, expands paths,
// and applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	LoadEnv(configDir)
	ApplyDefaults(&cfg)
	cfg.expandPaths(configDir)
	return &cfg, nil
}

// Default returns the default configuration with paths relative to dir.
func Default(dir string) *Config {
	var cfg Config
	LoadEnv(dir)
	ApplyDefaults(&cfg)
	cfg.expandPaths(dir)
	return &cfg
}

func (c *Config) expandPaths(configDir string) {
	c.Catalog.Source = expandPath(c.Catalog.Source, configDir)
	c.Catalog.Dir = expandPath(c.Catalog.Dir, configDir)
	c.Storage.DatabasePath = expandPath(c.Storage.DatabasePath, configDir)
	c.Storage.BleveIndexPath = expandPath(c.Storage.BleveIndexPath, configDir)
	c.Storage.VectorIndexPath = expandPath(c.Storage.VectorIndexPath, configDir)
}

// LoadEnv loads .env from dir and then the working directory. Variables already set win;
// missing files are ignored.
func LoadEnv(dir string) {
	for _, p := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" is the home directory; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		abs, err := filepath.Abs(filepath.Join(configDir, path))
		if err != nil {
			return filepath.Join(configDir, path)
		}
		return abs
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
