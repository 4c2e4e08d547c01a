package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/manualbook/internal/classifier"
	"github.com/hyperjump/manualbook/internal/models"
)

func queryResponse() *models.QueryResponse {
	return &models.QueryResponse{
		Query:          "open a chart",
		Classification: &classifier.Result{Intent: "do", Category: "application", Topics: []string{"chart"}, Confidence: 0.8},
		Results: []models.ArticleResult{
			{
				ID: "charting", Title: "Charting", Intent: "do", Category: "application",
				Content: strings.Repeat("candles ", 100), Score: 0.912, RelevanceScore: 0.6, IsRelevant: true,
				Related: &models.RelatedRefs{
					Parent:  &models.ArticleRef{ID: "overview", Title: "Overview"},
					SeeAlso: []models.ArticleRef{{ID: "indicators", Title: "Indicators"}},
				},
			},
			{ID: "feed_errors", Title: "Feed Errors", Intent: "trouble", Category: "data", Content: "Check the feed.", Score: 0.4},
		},
		Total:     2,
		Answer:    "Use the toolbar.",
		QueryTime: 12,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"compact", OutputCompact, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteQueryResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, queryResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.QueryResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Total != 2 || decoded.Results[0].ID != "charting" || decoded.Classification.Intent != "do" {
		t.Errorf("decoded: %+v", decoded)
	}
}

func TestWriteQueryResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, queryResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 2 articles in 12ms",
		"intent=do category=application",
		"Rank: 1 | Score: 0.912",
		"Parent: Overview",
		"See also: Indicators",
		"Feed Errors (trouble / data)",
		notRelevantTag,
		"--- Answer ---\nUse the toolbar.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("candles ", 100)) {
		t.Error("long content should be truncated")
	}
}

func TestWriteQueryResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, queryResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), buf.String())
	}
	if lines[0] != "0.912\tcharting\tdo\tCharting" {
		t.Errorf("first line = %q", lines[0])
	}
}

func TestWriteFindResults(t *testing.T) {
	resp := &models.FindResponse{
		Query:     "chartng",
		Corrected: "charting",
		Hits:      []models.FindHit{{ID: "charting", Title: "Charting", Intent: "do", Category: "application", Score: 1.5}},
		Total:     1,
	}
	var buf bytes.Buffer
	if err := WriteFindResults(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `showing results for "charting"`) || !strings.Contains(out, "Found 1 articles") {
		t.Errorf("output:\n%s", out)
	}

	buf.Reset()
	if err := WriteFindResults(&buf, resp, OutputCompact); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "1.500\tcharting\tCharting\n" {
		t.Errorf("compact = %q", got)
	}
}

func TestWriteArticle(t *testing.T) {
	a := &models.ArticleResult{
		ID: "charting", Title: "Charting", Intent: "do", Category: "application", HeadingLevel: 3,
		Content: "Full body text.", Images: []string{"manual_images/fig1.png"},
	}
	var buf bytes.Buffer
	if err := WriteArticle(&buf, a, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"# Charting", "level: 3", "Images: manual_images/fig1.png", "Full body text."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteArticles(t *testing.T) {
	resp := &models.ArticleBatchResponse{
		Articles: []models.ArticleResult{
			{ID: "overview", Title: "Overview", Content: "First body."},
			{ID: "charting", Title: "Charting", Content: "Second body."},
		},
		Total:   2,
		Missing: []string{"gone"},
	}
	var buf bytes.Buffer
	if err := WriteArticles(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Index(out, "# Overview") > strings.Index(out, "# Charting") {
		t.Errorf("articles out of order:\n%s", out)
	}
	if strings.Count(out, "---") != 1 || !strings.Contains(out, "Not found: gone") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestWriteClassifications(t *testing.T) {
	resp := &models.ClassifyResponse{Results: []models.ClassifiedQuery{
		{Query: "feed down", Classification: classifier.Result{Intent: "trouble", Category: "data", Topics: []string{"feed"}, Confidence: 0.9}},
	}}
	var buf bytes.Buffer
	if err := WriteClassifications(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "intent: trouble  category: data  confidence: 0.90  topics: feed") {
		t.Errorf("output:\n%s", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	st := &models.StatusResponse{
		CatalogExists: true,
		BuildID:       "b1",
		TotalArticles: 3,
		ByIntent:      map[string]int{"learn": 1, "do": 2},
		IndexedChunks: 4,
		VectorsStale:  true,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"total_articles:     3", "by_intent:          do=2 learn=1", "vectors_stale:      true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
