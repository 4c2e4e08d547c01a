package e2e

import (
	"strings"
	"testing"

	"github.com/hyperjump/manualbook/internal/catalog"
	"github.com/hyperjump/manualbook/internal/metadata"
)

func TestBuildCorpus_Returns40Articles(t *testing.T) {
	c := BuildCorpus()
	if c.TotalDocs != 40 {
		t.Errorf("expected 40 articles, got %d", c.TotalDocs)
	}
	if c.TotalQueries != 2*c.TotalDocs {
		t.Errorf("expected %d test cases, got %d", 2*c.TotalDocs, c.TotalQueries)
	}
}

func TestBuildCorpus_UniqueIDsAndSignatures(t *testing.T) {
	c := BuildCorpus()
	ids := make(map[string]bool)
	for _, a := range c.Articles {
		if ids[a.ID] {
			t.Errorf("duplicate id %q", a.ID)
		}
		ids[a.ID] = true
		if !metadata.ValidIntent(a.Intent) || !metadata.ValidCategory(a.Category) {
			t.Errorf("%s: invalid intent/category %q/%q", a.ID, a.Intent, a.Category)
		}
		for _, other := range c.Articles {
			if other.ID == a.ID {
				continue
			}
			for _, w := range strings.Fields(strings.ToLower(other.Title + " " + other.Content)) {
				if strings.Trim(w, ".,") == a.Signature {
					t.Errorf("signature %q of %s also appears in %s", a.Signature, a.ID, other.ID)
				}
			}
		}
	}
}

func TestBuildCorpus_MarkdownExtracts(t *testing.T) {
	c := BuildCorpus()
	articles := catalog.Extract(c.Markdown(), "manual.md")
	if len(articles) != c.TotalDocs {
		t.Fatalf("extracted %d articles, want %d", len(articles), c.TotalDocs)
	}
	for i, a := range articles {
		want := c.Articles[i]
		if a.ID != want.ID || a.Title != want.Title || a.ParentID != want.ParentID {
			t.Errorf("article %d = %s/%q parent %q, want %s/%q parent %q",
				i, a.ID, a.Title, a.ParentID, want.ID, want.Title, want.ParentID)
		}
		if len(a.Codes) != 1 || a.Codes[0] != want.Code {
			t.Errorf("%s: codes = %v, want [%s]", a.ID, a.Codes, want.Code)
		}
	}
}

func TestBuildCorpus_MarkdownWithout(t *testing.T) {
	c := BuildCorpus()
	articles := catalog.Extract(c.MarkdownWithout("troubleshooting"), "manual.md")
	if len(articles) != c.TotalDocs-5 {
		t.Fatalf("extracted %d articles, want %d", len(articles), c.TotalDocs-5)
	}
	for _, a := range articles {
		if a.ID == "troubleshooting" || a.ParentID == "troubleshooting" {
			t.Errorf("article %s should have been dropped", a.ID)
		}
	}
}
