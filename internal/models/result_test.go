package models

import (
	"testing"

	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/internal/retriever"
)

func TestFromResult(t *testing.T) {
	parent := &catalog.Article{ID: "overview", Title: "Overview", Intent: "learn", Category: "application"}
	child := &catalog.Article{ID: "palette", Title: "Palette", Intent: "do", Category: "application"}
	r := retriever.Result{
		Article:        &catalog.Article{ID: "colors", Title: "Colors", Intent: "do", Category: "application", Content: "abcdefghij"},
		Score:          0.66666,
		RelevanceScore: 0.2,
		IsRelevant:     true,
		Related:        &catalog.Related{Parent: parent, Children: []*catalog.Article{child}},
	}
	got := FromResult(r, 4)
	if got.Content != "abcd..." {
		t.Errorf("Content = %q", got.Content)
	}
	if got.Score != 0.667 {
		t.Errorf("Score = %v, want 0.667", got.Score)
	}
	if got.Related == nil || got.Related.Parent == nil || got.Related.Parent.ID != "overview" {
		t.Fatalf("Related = %+v", got.Related)
	}
	if len(got.Related.Children) != 1 || got.Related.SeeAlso == nil || got.Related.Siblings == nil {
		t.Errorf("Related lists = %+v", got.Related)
	}

	srcs := Sources([]retriever.Result{r})
	if len(srcs) != 1 || srcs[0].Parent != "Overview" || srcs[0].Children[0] != "Palette" {
		t.Errorf("Sources = %+v", srcs)
	}
}

func TestFromResults_Empty(t *testing.T) {
	if got := FromResults(nil, 0); got == nil || len(got) != 0 {
		t.Errorf("FromResults(nil) = %#v", got)
	}
	if FromRelated(nil) != nil {
		t.Error("FromRelated(nil) should be nil")
	}
}
