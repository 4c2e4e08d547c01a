package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manual.md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	imgDir := filepath.Join(dir, "manual_images")
	if err := os.MkdirAll(imgDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(imgDir, "overview.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	opts = append([]StoreOption{WithLogger(zap.NewNop())}, opts...)
	s, err := NewStore(filepath.Join(t.TempDir(), "catalog"), opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_BuildAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	src := writeSource(t, sampleDoc)

	stats, err := s.Build(ctx, src, true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.ArticlesCount != 4 {
		t.Errorf("ArticlesCount = %d, want 4", stats.ArticlesCount)
	}
	if stats.ByIntent["do"] != 2 || stats.ByCategory["data"] != 1 {
		t.Errorf("unexpected breakdown %v %v", stats.ByIntent, stats.ByCategory)
	}
	if stats.BuildID == "" {
		t.Error("missing build id")
	}
	if !reflect.DeepEqual(stats.ImageDirs, []string{"manual_images"}) {
		t.Errorf("ImageDirs = %v", stats.ImageDirs)
	}
	if _, err := os.Stat(filepath.Join(s.ArticlesDir(), "manual_images", "overview.png")); err != nil {
		t.Errorf("image not copied: %v", err)
	}

	a, err := s.Get(ctx, "editing_palette")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.ParentID != "overview" || a.Title != "Editing Palette" {
		t.Errorf("unexpected article %+v", a)
	}
	raw, err := os.ReadFile(filepath.Join(s.ArticlesDir(), "editing_palette.md"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Content != string(raw) {
		t.Error("article content should be the verbatim file")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
}

func TestStore_GetMissingFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Build(ctx, writeSource(t, sampleDoc), true); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(s.ArticlesDir(), "errors.md")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "errors"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_NoCatalog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if s.Exists() {
		t.Error("empty store should not exist")
	}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	entries, err := s.Search(ctx, Filter{})
	if err != nil || len(entries) != 0 {
		t.Errorf("Search = %v, %v", entries, err)
	}
}

func TestStore_BuildMissingSource(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Build(context.Background(), filepath.Join(t.TempDir(), "nope.md"), false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_Search(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Build(ctx, writeSource(t, sampleDoc), true); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"overview", "editing_palette", "color_settings", "errors"}},
		{"intent", Filter{Intent: "do"}, []string{"editing_palette", "color_settings"}},
		{"intent and category", Filter{Intent: "trouble", Category: "data"}, []string{"errors"}},
		{"parent", Filter{ParentID: "overview"}, []string{"editing_palette", "color_settings"}},
		{"level", Filter{HeadingLevel: 2}, []string{"overview", "errors"}},
		{"title", Filter{Title: "Color Settings"}, []string{"color_settings"}},
		{"no match", Filter{Intent: "learn", Category: "data"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.Search(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_Related(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Build(ctx, writeSource(t, sampleDoc), true); err != nil {
		t.Fatal(err)
	}
	rel, err := s.Related(ctx, "editing_palette")
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if rel.Parent == nil || rel.Parent.ID != "overview" {
		t.Errorf("parent = %+v", rel.Parent)
	}
	if len(rel.Siblings) != 1 || rel.Siblings[0].ID != "color_settings" {
		t.Errorf("siblings = %+v", rel.Siblings)
	}
	if len(rel.SeeAlso) != 1 || rel.SeeAlso[0].ID != "color_settings" {
		t.Errorf("see also = %+v", rel.SeeAlso)
	}
	if len(rel.Children) != 0 {
		t.Errorf("children = %+v", rel.Children)
	}

	rel, err = s.Related(ctx, "overview")
	if err != nil {
		t.Fatal(err)
	}
	if rel.Parent != nil || len(rel.Children) != 2 || len(rel.Siblings) != 0 {
		t.Errorf("overview related = %+v", rel)
	}

	if _, err := s.Related(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_BidirectionalConsistency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Build(ctx, writeSource(t, sampleDoc), true); err != nil {
		t.Fatal(err)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assertConsistent(t, all)
}

func TestStore_RebuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	src := writeSource(t, sampleDoc)
	if _, err := s.Build(ctx, src, true); err != nil {
		t.Fatal(err)
	}
	g1, err := s.Graph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Build(ctx, src, true); err != nil {
		t.Fatal(err)
	}
	g2, err := s.Graph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g1.BuildID == g2.BuildID {
		t.Error("rebuild should produce a new build id")
	}
	if !reflect.DeepEqual(g1.Articles, g2.Articles) {
		t.Error("rebuild changed the relationship graph")
	}
	ids, err := s.IDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"overview", "editing_palette", "color_settings", "errors"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("IDs = %v", ids)
	}
}

func TestStore_CleanRemovesStaleArticles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Build(ctx, writeSource(t, sampleDoc), true); err != nil {
		t.Fatal(err)
	}
	small := "<!--METADATA\nintent: do\nid: only\ncategory: data\n-->\n# Only\n\nbody\n"
	if _, err := s.Build(ctx, writeSource(t, small), true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.ArticlesDir(), "overview.md")); !os.IsNotExist(err) {
		t.Error("stale article file survived a clean build")
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalArticles != 1 || stats.ByIntent["do"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStore_Cache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithCache())
	src := writeSource(t, sampleDoc)
	if _, err := s.Build(ctx, src, true); err != nil {
		t.Fatal(err)
	}
	first := s.CachedBuildID()
	if first == "" {
		t.Fatal("build should populate the cache")
	}
	if _, err := s.Get(ctx, "overview"); err != nil {
		t.Fatal(err)
	}
	stats, err := s.Build(ctx, src, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.CachedBuildID(); got != stats.BuildID || got == first {
		t.Errorf("cache build id = %q, want %q", got, stats.BuildID)
	}
	idx, err := s.Index(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if idx.BuildID != stats.BuildID {
		t.Errorf("index build id = %q, want %q", idx.BuildID, stats.BuildID)
	}
}

func TestStore_EmptySource(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.Build(context.Background(), writeSource(t, "# No metadata here\n"), true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ArticlesCount != 0 || stats.Message == "" {
		t.Errorf("stats = %+v", stats)
	}
}
