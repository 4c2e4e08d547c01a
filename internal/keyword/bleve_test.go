package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/manualbook/internal/catalog"
)

func testArticles() []*catalog.Article {
	return []*catalog.Article{
		{ID: "editing_palette", Title: "Editing the Palette", Intent: "do", Category: "application",
			Synonyms: []string{"swatches", "color scheme"}, Codes: []string{"P100"},
			Content: "Open the palette window and pick a swatch."},
		{ID: "export_errors", Title: "Export Errors", Intent: "trouble", Category: "data",
			Codes: []string{"E42"}, Content: "When an export fails the log lists the failing fields."},
		{ID: "overview", Title: "Overview", Intent: "learn", Category: "application",
			Content: "The application has a palette, an export tool and a workspace."},
	}
}

func newTestIndex(t *testing.T, path string) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func ids(hits []*Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestBleveIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, "")
	if err := idx.Replace(ctx, testArticles()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		query string
		opts  *SearchOptions
		first string
		count int
	}{
		{"title beats content", "palette", nil, "editing_palette", 2},
		{"synonym", "swatches", nil, "editing_palette", 1},
		{"code", "e42", nil, "export_errors", 1},
		{"id words", "editing palette", nil, "editing_palette", 0},
		{"intent filter", "palette", &SearchOptions{Intent: "learn"}, "overview", 1},
		{"category filter", "export", &SearchOptions{Category: "data"}, "export_errors", 1},
		{"fuzzy", "palete", &SearchOptions{Fuzziness: 1}, "editing_palette", 0},
		{"no match", "kubernetes", nil, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.Search(ctx, tt.query, 10, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if tt.first == "" {
				if len(hits) != 0 {
					t.Errorf("hits = %v, want none", ids(hits))
				}
				return
			}
			if len(hits) == 0 || hits[0].ID != tt.first {
				t.Fatalf("hits = %v, want %s first", ids(hits), tt.first)
			}
			if tt.count > 0 && len(hits) != tt.count {
				t.Errorf("hits = %v, want %d", ids(hits), tt.count)
			}
		})
	}
}

func TestBleveIndex_HitFields(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, "")
	if err := idx.Replace(ctx, testArticles()); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "swatches", 1, nil)
	if err != nil || len(hits) != 1 {
		t.Fatalf("hits = %v, err = %v", hits, err)
	}
	h := hits[0]
	if h.Title != "Editing the Palette" || h.Intent != "do" || h.Category != "application" || h.Score <= 0 {
		t.Errorf("hit = %+v", h)
	}
	if hits, _ := idx.Search(ctx, "   ", 10, nil); len(hits) != 0 {
		t.Errorf("blank query returned %v", ids(hits))
	}
}

func TestBleveIndex_ReplaceDropsStale(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, "")
	if err := idx.Replace(ctx, testArticles()); err != nil {
		t.Fatal(err)
	}
	if err := idx.Replace(ctx, testArticles()[:1]); err != nil {
		t.Fatal(err)
	}
	n, err := idx.DocCount()
	if err != nil || n != 1 {
		t.Errorf("DocCount = %d, %v; want 1", n, err)
	}
	if hits, _ := idx.Search(ctx, "export", 10, nil); len(hits) != 0 {
		t.Errorf("stale article still found: %v", ids(hits))
	}
}

func TestBleveIndex_ReopenAndTerms(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Replace(ctx, testArticles()); err != nil {
		t.Fatal(err)
	}
	_ = idx.Close()

	reopened := newTestIndex(t, path)
	n, err := reopened.DocCount()
	if err != nil || n != 3 {
		t.Fatalf("DocCount after reopen = %d, %v", n, err)
	}
	terms, err := reopened.Terms()
	if err != nil {
		t.Fatal(err)
	}
	if terms["palette"] < 2 || terms["swatches"] != 1 {
		t.Errorf("terms palette=%d swatches=%d", terms["palette"], terms["swatches"])
	}

	corrected, ok := NewSuggester(reopened).Correct("palete")
	if !ok || corrected != "palette" {
		t.Errorf("Correct = %q, %v", corrected, ok)
	}
}
