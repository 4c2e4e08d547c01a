package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	indexFileName     = "catalog.json"
	relationshipsFile = "relationships.json"
	articlesDirName   = "articles"
	imageDirSuffix    = "_images"
	catalogFilePerm   = 0644
	catalogDirPerm    = 0755
)

// BuildStats summarizes one catalog build.
type BuildStats struct {
	ArticlesCount int            `json:"articles_count"`
	SourceFile    string         `json:"source_file"`
	CatalogDir    string         `json:"catalog_dir"`
	BuildID       string         `json:"build_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	ByIntent      map[string]int `json:"by_intent"`
	ByCategory    map[string]int `json:"by_category"`
	ImageDirs     []string       `json:"image_dirs,omitempty"`
	Message       string         `json:"message,omitempty"`
}

// Filter selects index entries by exact match on every non-zero field.
type Filter struct {
	Intent       string
	Category     string
	ParentID     string
	Title        string
	HeadingLevel int
}

func (f Filter) match(e *Entry) bool {
	if f.Intent != "" && e.Intent != f.Intent {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.ParentID != "" && e.ParentID != f.ParentID {
		return false
	}
	if f.Title != "" && e.Title != f.Title {
		return false
	}
	if f.HeadingLevel != 0 && e.HeadingLevel != f.HeadingLevel {
		return false
	}
	return true
}

// Store is a file-backed article catalog. Builds are serialized; reads re-read the
// persisted index unless WithCache is set.
type Store struct {
	dir         string
	articlesDir string
	extractor   *Extractor
	logger      *zap.Logger

	buildMu sync.Mutex

	cacheEnabled bool
	cacheMu      sync.RWMutex
	cache        *snapshot
}

// snapshot is a cached view of the persisted index and graph, keyed by build id and the
// index file's stat signature.
type snapshot struct {
	buildID string
	modTime time.Time
	size    int64
	index   *Index
	graph   *Graph
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithCache enables the read-through index cache. The cache is replaced atomically on Build
// and reloaded when the index file changes on disk.
func WithCache() StoreOption {
	return func(s *Store) { s.cacheEnabled = true }
}

// NewStore opens (creating if needed) a catalog rooted at dir.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		dir:         dir,
		articlesDir: filepath.Join(dir, articlesDirName),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.extractor = NewExtractor(WithExtractorLogger(s.logger))
	if err := os.MkdirAll(s.articlesDir, catalogDirPerm); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	return s, nil
}

// Dir returns the catalog root directory.
func (s *Store) Dir() string { return s.dir }

// ArticlesDir returns the directory holding article files and copied image directories.
func (s *Store) ArticlesDir() string { return s.articlesDir }

// Exists reports whether a catalog index has been built.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, indexFileName))
	return err == nil
}

// Build extracts articles from the markdown document at sourcePath and replaces the catalog.
// Only one build runs at a time.
func (s *Store) Build(ctx context.Context, sourcePath string, cleanExisting bool) (*BuildStats, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source file %s: %w", sourcePath, ErrNotFound)
		}
		return nil, fmt.Errorf("read source: %w", err)
	}
	if cleanExisting {
		if err := s.clean(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	articles := s.extractor.Extract(string(data), sourcePath)
	stats := &BuildStats{
		ArticlesCount: len(articles),
		SourceFile:    sourcePath,
		CatalogDir:    s.dir,
		Timestamp:     time.Now(),
		ByIntent:      countBy(articles, func(a *Article) string { return a.Intent }),
		ByCategory:    countBy(articles, func(a *Article) string { return a.Category }),
	}
	if len(articles) == 0 {
		stats.Message = "no articles with metadata found in source file"
		s.logger.Warn("catalog build found no articles", zap.String("source", sourcePath))
		return stats, nil
	}

	for _, a := range articles {
		path := filepath.Join(s.dir, articleFile(a.ID))
		if err := os.WriteFile(path, []byte(a.Content), catalogFilePerm); err != nil {
			return nil, fmt.Errorf("write article %s: %w", a.ID, err)
		}
	}
	copied, err := s.copyImages(filepath.Dir(sourcePath))
	if err != nil {
		return nil, err
	}
	stats.ImageDirs = copied

	buildID := uuid.New().String()
	now := time.Now().UTC()
	index := BuildIndex(articles, sourcePath)
	index.BuildID, index.CreatedAt = buildID, now
	graph := BuildGraph(articles)
	graph.BuildID, graph.CreatedAt = buildID, now

	if err := writeJSON(filepath.Join(s.dir, relationshipsFile), graph); err != nil {
		return nil, fmt.Errorf("write relationships: %w", err)
	}
	if err := writeJSON(filepath.Join(s.dir, indexFileName), index); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}
	s.storeSnapshot(index, graph)

	stats.BuildID = buildID
	s.logger.Info("catalog built",
		zap.String("source", sourcePath),
		zap.String("build_id", buildID),
		zap.Int("articles", len(articles)))
	return stats, nil
}

// Get returns the article with id, reading its content from the article file.
func (s *Store) Get(ctx context.Context, id string) (*Article, error) {
	index, _, err := s.load()
	if err != nil {
		return nil, err
	}
	return s.get(index, id)
}

func (s *Store) get(index *Index, id string) (*Article, error) {
	entry, ok := index.Articles[id]
	if !ok {
		return nil, fmt.Errorf("article %q: %w", id, ErrNotFound)
	}
	content, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(entry.File)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("article file %s: %w", entry.File, ErrNotFound)
		}
		return nil, fmt.Errorf("read article %q: %w", id, err)
	}
	a := entry.hydrate(string(content))
	a.ID = id
	return a, nil
}

// Search returns the index entries matching every field set in f, in document order.
// A missing catalog yields no entries.
func (s *Store) Search(ctx context.Context, f Filter) ([]*Entry, error) {
	index, _, err := s.load()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Entry
	for _, e := range index.Entries() {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns every index entry in document order.
func (s *Store) Entries(ctx context.Context) ([]*Entry, error) {
	return s.Search(ctx, Filter{})
}

// All hydrates every article. Articles whose files cannot be read are skipped.
func (s *Store) All(ctx context.Context) ([]*Article, error) {
	index, _, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*Article, 0, len(index.Articles))
	for _, e := range index.Entries() {
		a, err := s.get(index, e.ID)
		if err != nil {
			s.logger.Warn("skipping unreadable article", zap.String("id", e.ID), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// IDs returns every article id in document order.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	index, _, err := s.load()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), index.Order...), nil
}

// CatalogStats counts the persisted articles by intent and category.
type CatalogStats struct {
	TotalArticles int            `json:"total_articles"`
	BuildID       string         `json:"build_id"`
	CreatedAt     time.Time      `json:"created_at"`
	SourceFile    string         `json:"source_file"`
	ByIntent      map[string]int `json:"by_intent"`
	ByCategory    map[string]int `json:"by_category"`
}

// Stats summarizes the persisted catalog.
func (s *Store) Stats(ctx context.Context) (*CatalogStats, error) {
	index, _, err := s.load()
	if err != nil {
		return nil, err
	}
	st := &CatalogStats{
		TotalArticles: len(index.Articles),
		BuildID:       index.BuildID,
		CreatedAt:     index.CreatedAt,
		SourceFile:    index.SourceFile,
		ByIntent:      make(map[string]int),
		ByCategory:    make(map[string]int),
	}
	for _, e := range index.Articles {
		st.ByIntent[e.Intent]++
		st.ByCategory[e.Category]++
	}
	return st, nil
}

// Related returns the parent, children, see-also and sibling articles of id.
// Links to articles that cannot be loaded are skipped.
func (s *Store) Related(ctx context.Context, id string) (*Related, error) {
	index, graph, err := s.load()
	if err != nil {
		return nil, err
	}
	node, ok := graph.Articles[id]
	if !ok {
		return nil, fmt.Errorf("article %q: %w", id, ErrNotFound)
	}
	rel := &Related{Children: []*Article{}, SeeAlso: []*Article{}, Siblings: []*Article{}}
	hydrate := func(ids []string) []*Article {
		out := make([]*Article, 0, len(ids))
		for _, rid := range ids {
			a, err := s.get(index, rid)
			if err != nil {
				s.logger.Debug("related article unavailable", zap.String("id", rid), zap.Error(err))
				continue
			}
			out = append(out, a)
		}
		return out
	}
	if node.Parent != "" {
		if p, err := s.get(index, node.Parent); err == nil {
			rel.Parent = p
			rel.Siblings = hydrate(graph.Siblings(id))
		}
	}
	rel.Children = hydrate(node.Children)
	rel.SeeAlso = hydrate(node.SeeAlso)
	return rel, nil
}

// Index returns the persisted catalog index.
func (s *Store) Index(ctx context.Context) (*Index, error) {
	index, _, err := s.load()
	return index, err
}

// Graph returns the persisted relationship graph.
func (s *Store) Graph(ctx context.Context) (*Graph, error) {
	_, graph, err := s.load()
	return graph, err
}

func (s *Store) load() (*Index, *Graph, error) {
	indexPath := filepath.Join(s.dir, indexFileName)
	info, err := os.Stat(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("catalog index %s: %w", indexPath, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("stat catalog index: %w", err)
	}
	if s.cacheEnabled {
		s.cacheMu.RLock()
		snap := s.cache
		s.cacheMu.RUnlock()
		if snap != nil && snap.modTime.Equal(info.ModTime()) && snap.size == info.Size() {
			return snap.index, snap.graph, nil
		}
	}

	var index Index
	if err := readJSON(indexPath, &index); err != nil {
		return nil, nil, fmt.Errorf("read catalog index: %w", err)
	}
	if index.Articles == nil {
		index.Articles = make(map[string]*Entry)
	}
	for id, e := range index.Articles {
		e.ID = id
	}
	if len(index.Order) != len(index.Articles) {
		index.Order = sortedKeys(index.Articles)
	}

	var graph Graph
	if err := readJSON(filepath.Join(s.dir, relationshipsFile), &graph); err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("read relationships: %w", err)
		}
		graph = Graph{Version: FormatVersion}
	}
	if graph.Articles == nil {
		graph.Articles = make(map[string]*Node)
	}

	if s.cacheEnabled {
		s.cacheMu.Lock()
		s.cache = &snapshot{buildID: index.BuildID, modTime: info.ModTime(), size: info.Size(), index: &index, graph: &graph}
		s.cacheMu.Unlock()
	}
	return &index, &graph, nil
}

func (s *Store) storeSnapshot(index *Index, graph *Graph) {
	if !s.cacheEnabled {
		return
	}
	info, err := os.Stat(filepath.Join(s.dir, indexFileName))
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if err != nil {
		s.cache = nil
		return
	}
	for id, e := range index.Articles {
		e.ID = id
	}
	s.cache = &snapshot{buildID: index.BuildID, modTime: info.ModTime(), size: info.Size(), index: index, graph: graph}
}

// CachedBuildID returns the build id of the cached snapshot, or "" when nothing is cached.
func (s *Store) CachedBuildID() string {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	if s.cache == nil {
		return ""
	}
	return s.cache.buildID
}

func (s *Store) clean() error {
	if err := os.RemoveAll(s.articlesDir); err != nil {
		return fmt.Errorf("remove articles dir: %w", err)
	}
	if err := os.MkdirAll(s.articlesDir, catalogDirPerm); err != nil {
		return fmt.Errorf("create articles dir: %w", err)
	}
	for _, name := range []string{indexFileName, relationshipsFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	s.cacheMu.Lock()
	s.cache = nil
	s.cacheMu.Unlock()
	return nil
}

// copyImages copies every "<name>_images" directory next to the source document into the
// articles directory, replacing earlier copies.
func (s *Store) copyImages(sourceDir string) ([]string, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("list source dir: %w", err)
	}
	var copied []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), imageDirSuffix) {
			continue
		}
		dest := filepath.Join(s.articlesDir, e.Name())
		if err := os.RemoveAll(dest); err != nil {
			return nil, fmt.Errorf("remove %s: %w", dest, err)
		}
		if err := copyDir(filepath.Join(sourceDir, e.Name()), dest); err != nil {
			return nil, fmt.Errorf("copy images %s: %w", e.Name(), err)
		}
		s.logger.Debug("copied image directory", zap.String("dir", e.Name()))
		copied = append(copied, e.Name())
	}
	return copied, nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, catalogDirPerm)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// writeJSON writes v to path through a temp file and rename so readers never see a
// partially written document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, catalogFilePerm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func countBy(articles []*Article, key func(*Article) string) map[string]int {
	counts := make(map[string]int)
	for _, a := range articles {
		counts[key(a)]++
	}
	return counts
}

func sortedKeys(m map[string]*Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
