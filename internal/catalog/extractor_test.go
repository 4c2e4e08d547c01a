package catalog

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

const sampleDoc = `# Manual

Intro text without metadata.

<!--METADATA
intent: learn
id: overview
category: application
synonyms: intro, basics
-->

## Overview

Overview body.

![diagram](manual_images/overview.png)

<!--METADATA
intent: do
id: editing_palette
category: application
see: color_settings
codes: p100
-->

### Editing Palette

Open the palette window.

#### Palette Tips

Some tips. ![tip](manual_images/tip.png)

<!--METADATA
intent: do
id: color_settings
category: application
-->

### Color Settings

Change colors.

<!--METADATA
intent: trouble
id: errors
category: data
-->

## Errors

Error table.
`

func TestExtract_EndToEnd(t *testing.T) {
	md := "<!--METADATA\nintent: do\nid: x\ncategory: application\n-->\n\n## X\n\nbody of x\n\n### Y\n\nbody of y\n"
	articles := Extract(md, "doc.md")
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	a := articles[0]
	if a.ID != "x" || a.Title != "X" || a.HeadingLevel != 2 {
		t.Errorf("unexpected article %+v", a)
	}
	if !strings.Contains(a.Content, "## X") {
		t.Errorf("content missing X heading: %q", a.Content)
	}
	if !strings.Contains(a.Content, "### Y\n\nbody of y") {
		t.Errorf("content missing reconstructed Y section: %q", a.Content)
	}
	if !strings.HasPrefix(a.Content, "<!--METADATA") {
		t.Errorf("content should start with its metadata block: %q", a.Content)
	}
}

func TestExtract_Hierarchy(t *testing.T) {
	articles := Extract(sampleDoc, "manual.md")
	byID := make(map[string]*Article)
	var ids []string
	for _, a := range articles {
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}
	if want := []string{"overview", "editing_palette", "color_settings", "errors"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	overview := byID["overview"]
	if overview.ParentID != "" {
		t.Errorf("overview parent = %q, want none", overview.ParentID)
	}
	if want := []string{"editing_palette", "color_settings"}; !reflect.DeepEqual(overview.ChildrenIDs, want) {
		t.Errorf("overview children = %v, want %v", overview.ChildrenIDs, want)
	}
	if want := []string{"manual_images/overview.png"}; !reflect.DeepEqual(overview.Images, want) {
		t.Errorf("overview images = %v", overview.Images)
	}

	palette := byID["editing_palette"]
	if palette.ParentID != "overview" {
		t.Errorf("palette parent = %q", palette.ParentID)
	}
	if !strings.Contains(palette.Content, "#### Palette Tips") {
		t.Errorf("headless sub-section not merged: %q", palette.Content)
	}
	if want := []string{"manual_images/tip.png"}; !reflect.DeepEqual(palette.Images, want) {
		t.Errorf("palette images = %v", palette.Images)
	}
	if strings.Contains(palette.Content, "color_settings\ncategory") {
		t.Error("next section's metadata leaked into palette content")
	}
	if !reflect.DeepEqual(palette.SeeAlsoIDs, []string{"color_settings"}) {
		t.Errorf("see also = %v", palette.SeeAlsoIDs)
	}
	if !reflect.DeepEqual(palette.Codes, []string{"P100"}) {
		t.Errorf("codes = %v", palette.Codes)
	}
	if palette.WordCount == 0 || palette.CharCount == 0 {
		t.Error("counts not computed")
	}

	if byID["errors"].ParentID != "" {
		t.Errorf("errors parent = %q, want none", byID["errors"].ParentID)
	}
	if strings.Contains(overview.Content, "Intro text") {
		t.Error("orphan headless top-level section should be dropped")
	}
}

func TestExtract_ParentChildConsistency(t *testing.T) {
	articles := Extract(sampleDoc, "manual.md")
	assertConsistent(t, articles)
}

func TestExtract_Idempotent(t *testing.T) {
	first := Extract(sampleDoc, "manual.md")
	second := Extract(sampleDoc, "manual.md")
	if !reflect.DeepEqual(first, second) {
		t.Error("extraction is not deterministic")
	}
}

func TestExtract_HeadlessCreatesNoEntry(t *testing.T) {
	base := "<!--METADATA\nintent: learn\nid: parent\ncategory: data\n-->\n# Parent\n\ntext\n"
	withSub := base + "\n## Sub\n\nmore text\n"
	if a, b := len(Extract(base, "")), len(Extract(withSub, "")); a != 1 || b != 1 {
		t.Errorf("article counts = %d, %d; want 1, 1", a, b)
	}
}

func TestExtract_InvalidMetadataSkipsSection(t *testing.T) {
	md := "<!--METADATA\nintent: learn\nid: a\ncategory: data\n-->\n# A\n\na body\n\n" +
		"<!--METADATA\nintent: maybe\nid: b\ncategory: data\n-->\n## B\n\nb body\n\n" +
		"<!--METADATA\nintent: do\nid: c\ncategory: data\n-->\n## C\n\nc body\n"
	articles := Extract(md, "")
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	if articles[0].ID != "a" || articles[1].ID != "c" {
		t.Errorf("ids = %s, %s", articles[0].ID, articles[1].ID)
	}
	if strings.Contains(articles[0].Content, "b body") {
		t.Error("invalid section content merged into parent")
	}
	if articles[1].ParentID != "a" {
		t.Errorf("c parent = %q, want a", articles[1].ParentID)
	}
}

func TestExtract_MetadataBlockedByHeading(t *testing.T) {
	md := "<!--METADATA\nintent: do\nid: first\ncategory: data\n-->\n# First\n\n## Second\n\nbody\n"
	articles := Extract(md, "")
	if len(articles) != 1 || articles[0].ID != "first" {
		t.Fatalf("unexpected articles %+v", articles)
	}
	if !strings.Contains(articles[0].Content, "## Second") {
		t.Error("second heading should merge as headless")
	}
}

func TestExtract_LookbackWindow(t *testing.T) {
	filler := strings.Repeat("x", MetadataLookback)
	md := "<!--METADATA\nintent: do\nid: far\ncategory: data\n-->\n" + filler + "\n# Far\n\nbody\n"
	if got := Extract(md, ""); len(got) != 0 {
		t.Errorf("block outside lookback window should not attach, got %d articles", len(got))
	}
}

func TestExtract_LookbackCountsCharacters(t *testing.T) {
	block := "<!--METADATA\nintent: do\nid: palette\ncategory: application\nsynonyms: " +
		strings.TrimSuffix(strings.Repeat("調色板編集, ", 40), ", ") + "\n-->\n"
	if len(block) <= MetadataLookback || utf8.RuneCountInString(block) >= MetadataLookback {
		t.Fatalf("fixture should exceed the window in bytes only (%d bytes, %d runes)", len(block), utf8.RuneCountInString(block))
	}
	articles := Extract(block+"## Palette\n\nbody\n", "")
	if len(articles) != 1 || articles[0].ID != "palette" {
		t.Fatalf("unexpected articles %+v", articles)
	}
	if len(articles[0].Synonyms) == 0 {
		t.Error("synonyms should be parsed")
	}

	far := "<!--METADATA\nintent: do\nid: far\ncategory: data\n-->\n" + strings.Repeat("é", MetadataLookback) + "\n# Far\n"
	if got := Extract(far, ""); len(got) != 0 {
		t.Errorf("block more than %d characters away should not attach, got %d articles", MetadataLookback, len(got))
	}
}

func TestExtract_ClosestBlockWins(t *testing.T) {
	md := "<!--METADATA\nintent: do\nid: old\ncategory: data\n-->\n" +
		"<!--METADATA\nintent: learn\nid: new\ncategory: data\n-->\n# Title\n\nbody\n"
	articles := Extract(md, "")
	if len(articles) != 1 || articles[0].ID != "new" {
		t.Fatalf("unexpected articles %+v", articles)
	}
}

func TestExtract_DuplicateIDKeepsFirst(t *testing.T) {
	md := "<!--METADATA\nintent: do\nid: dup\ncategory: data\n-->\n# One\n\n" +
		"<!--METADATA\nintent: do\nid: dup\ncategory: data\n-->\n# Two\n"
	articles := Extract(md, "")
	if len(articles) != 1 || articles[0].Title != "One" {
		t.Fatalf("unexpected articles %+v", articles)
	}
}

func TestBuildGraph_Siblings(t *testing.T) {
	g := BuildGraph(Extract(sampleDoc, "manual.md"))
	if got := g.Siblings("editing_palette"); !reflect.DeepEqual(got, []string{"color_settings"}) {
		t.Errorf("siblings = %v", got)
	}
	if got := g.Siblings("overview"); got != nil {
		t.Errorf("root siblings = %v, want nil", got)
	}
}

func FuzzExtract(f *testing.F) {
	f.Add(sampleDoc)
	f.Add("<!--METADATA\nintent: do\nid: x\ncategory: application\n-->\n## X\n### Y\nbody")
	f.Add("# a\n<!--METADATA\n-->\n## b")
	f.Fuzz(func(t *testing.T, md string) {
		first := Extract(md, "fuzz")
		assertConsistent(t, first)
		if second := Extract(md, "fuzz"); !reflect.DeepEqual(first, second) {
			t.Fatal("extraction is not deterministic")
		}
	})
}

func assertConsistent(t *testing.T, articles []*Article) {
	t.Helper()
	byID := make(map[string]*Article, len(articles))
	for _, a := range articles {
		if _, dup := byID[a.ID]; dup {
			t.Fatalf("duplicate id %q", a.ID)
		}
		byID[a.ID] = a
	}
	for _, a := range articles {
		if a.ParentID == "" {
			continue
		}
		p, ok := byID[a.ParentID]
		if !ok {
			t.Fatalf("article %q has unknown parent %q", a.ID, a.ParentID)
		}
		found := false
		for _, c := range p.ChildrenIDs {
			if c == a.ID {
				found = true
			}
		}
		if !found {
			t.Errorf("article %q missing from parent %q children", a.ID, p.ID)
		}
		if a.HeadingLevel <= p.HeadingLevel {
			t.Errorf("child %q level %d not below parent level %d", a.ID, a.HeadingLevel, p.HeadingLevel)
		}
	}
}
