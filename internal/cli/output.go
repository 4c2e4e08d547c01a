// Package cli formats command output for the manualbook CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/manualbook/internal/models"
	"github.com/hyperjump/manualbook/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputCompact, OutputJSON:
		return OutputFormat(s), nil
	case "":
		return OutputText, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

const (
	rule           = "─────────────────────────────────────────────────────────"
	previewRunes   = 300
	notRelevantTag = " [low relevance]"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteQueryResults writes a query response in the given format.
func WriteQueryResults(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, resp)
	case OutputCompact:
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", r.Score, r.ID, r.Intent, r.Title)
		}
		return nil
	}

	fmt.Fprintf(w, "\nFound %d articles in %dms\n", resp.Total, resp.QueryTime)
	if c := resp.Classification; c != nil {
		fmt.Fprintf(w, "Classified as intent=%s category=%s (confidence %.2f)\n", c.Intent, c.Category, c.Confidence)
	}
	fmt.Fprintln(w)
	for i, r := range resp.Results {
		writeArticle(w, i+1, r)
	}
	if resp.Answer != "" {
		fmt.Fprintln(w, "--- Answer ---")
		fmt.Fprintf(w, "%s\n", resp.Answer)
	}
	return nil
}

func writeArticle(w io.Writer, rank int, r models.ArticleResult) {
	tag := ""
	if !r.IsRelevant {
		tag = notRelevantTag
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Rank: %d | Score: %.3f | Relevance: %.3f%s\n", rank, r.Score, r.RelevanceScore, tag)
	fmt.Fprintf(w, "ID: %s\n", r.ID)
	fmt.Fprintf(w, "Title: %s (%s / %s)\n", r.Title, r.Intent, r.Category)
	writeRelated(w, r.Related)
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Content, previewRunes))
}

func writeRelated(w io.Writer, rel *models.RelatedRefs) {
	if rel == nil {
		return
	}
	if rel.Parent != nil {
		fmt.Fprintf(w, "Parent: %s\n", rel.Parent.Title)
	}
	if len(rel.Children) > 0 {
		fmt.Fprintf(w, "Children: %s\n", titles(rel.Children))
	}
	if len(rel.SeeAlso) > 0 {
		fmt.Fprintf(w, "See also: %s\n", titles(rel.SeeAlso))
	}
}

func titles(refs []models.ArticleRef) string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Title)
	}
	return strings.Join(out, ", ")
}

// WriteArticle writes one article in full.
func WriteArticle(w io.Writer, a *models.ArticleResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, a)
	}
	fmt.Fprintf(w, "# %s\n", a.Title)
	fmt.Fprintf(w, "id: %s | intent: %s | category: %s | level: %d\n", a.ID, a.Intent, a.Category, a.HeadingLevel)
	writeRelated(w, a.Related)
	if len(a.Images) > 0 {
		fmt.Fprintf(w, "Images: %s\n", strings.Join(a.Images, ", "))
	}
	fmt.Fprintf(w, "\n%s\n", a.Content)
	return nil
}

// WriteArticles writes a batch of articles separated by rules, then the ids that were not found.
func WriteArticles(w io.Writer, resp *models.ArticleBatchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	for i := range resp.Articles {
		if i > 0 {
			fmt.Fprintln(w, "\n---")
		}
		if err := WriteArticle(w, &resp.Articles[i], format); err != nil {
			return err
		}
	}
	if len(resp.Missing) > 0 {
		fmt.Fprintf(w, "\nNot found: %s\n", strings.Join(resp.Missing, ", "))
	}
	return nil
}

// WriteFindResults writes keyword lookup hits.
func WriteFindResults(w io.Writer, resp *models.FindResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, resp)
	case OutputCompact:
		for _, h := range resp.Hits {
			fmt.Fprintf(w, "%.3f\t%s\t%s\n", h.Score, h.ID, h.Title)
		}
		return nil
	}
	if resp.Corrected != "" {
		fmt.Fprintf(w, "No matches for %q; showing results for %q\n", resp.Query, resp.Corrected)
	}
	fmt.Fprintf(w, "Found %d articles\n", resp.Total)
	for i, h := range resp.Hits {
		fmt.Fprintf(w, "%2d. %-40s %s (%s / %s) score %.3f\n", i+1, h.ID, h.Title, h.Intent, h.Category, h.Score)
	}
	return nil
}

// WriteClassifications writes query classifications.
func WriteClassifications(w io.Writer, resp *models.ClassifyResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	for _, r := range resp.Results {
		c := r.Classification
		fmt.Fprintf(w, "%s\n  intent: %s  category: %s  confidence: %.2f", r.Query, c.Intent, c.Category, c.Confidence)
		if len(c.Topics) > 0 {
			fmt.Fprintf(w, "  topics: %s", strings.Join(c.Topics, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteStatus writes catalog and index status.
func WriteStatus(w io.Writer, st *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, st)
	}
	fmt.Fprintf(w, "catalog_exists:     %t\n", st.CatalogExists)
	if st.CatalogExists {
		fmt.Fprintf(w, "build_id:           %s\n", st.BuildID)
		fmt.Fprintf(w, "source_file:        %s\n", st.SourceFile)
		fmt.Fprintf(w, "total_articles:     %d\n", st.TotalArticles)
		writeCounts(w, "by_intent", st.ByIntent)
		writeCounts(w, "by_category", st.ByCategory)
	}
	fmt.Fprintf(w, "indexed_chunks:     %d\n", st.IndexedChunks)
	fmt.Fprintf(w, "vector_build_id:    %s\n", st.VectorBuildID)
	fmt.Fprintf(w, "vectors_stale:      %t\n", st.VectorsStale)
	fmt.Fprintf(w, "keyword_docs:       %d\n", st.KeywordDocs)
	fmt.Fprintf(w, "disk_usage_bytes:   %d\n", st.DiskUsageBytes)
	return nil
}

func writeCounts(w io.Writer, label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	fmt.Fprintf(w, "%-19s %s\n", label+":", strings.Join(parts, " "))
}
