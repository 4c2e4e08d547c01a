package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/manualbook/internal/catalog"
)

const (
	fieldTitle    = "title"
	fieldSlug     = "slug"
	fieldSynonyms = "synonyms"
	fieldCodes    = "codes"
	fieldContent  = "content"
	fieldIntent   = "intent"
	fieldCategory = "category"

	defaultTitleBoost   = 3.0
	defaultSynonymBoost = 2.0
)

var textFields = []string{fieldTitle, fieldSlug, fieldSynonyms, fieldCodes, fieldContent}

// BleveIndex implements ArticleIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so product codes and ids match as
	// written.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	for _, f := range textFields {
		doc.AddFieldMappingsAt(f, text)
	}
	kw := bleve.NewKeywordFieldMapping()
	doc.AddFieldMappingsAt(fieldIntent, kw)
	doc.AddFieldMappingsAt(fieldCategory, kw)

	im.AddDocumentMapping("article", doc)
	im.DefaultType = "article"
	im.DefaultMapping = doc
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index in memory.
// If the mapping changes, remove the index directory; the next build repopulates it.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func document(a *catalog.Article) map[string]interface{} {
	return map[string]interface{}{
		fieldTitle: a.Title,
		// underscores as spaces so "editing_palette" matches "editing palette"
		fieldSlug:     strings.ReplaceAll(a.ID, "_", " "),
		fieldSynonyms: strings.Join(a.Synonyms, " "),
		fieldCodes:    strings.Join(a.Codes, " "),
		fieldContent:  a.Content,
		fieldIntent:   a.Intent,
		fieldCategory: a.Category,
	}
}

// Replace deletes every indexed article not in articles and (re)indexes the rest in one batch.
func (b *BleveIndex) Replace(ctx context.Context, articles []*catalog.Article) error {
	existing, err := b.ids()
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(articles))
	batch := b.index.NewBatch()
	for _, a := range articles {
		keep[a.ID] = true
		if err := batch.Index(a.ID, document(a)); err != nil {
			return fmt.Errorf("failed to index article %s: %w", a.ID, err)
		}
	}
	for _, id := range existing {
		if !keep[id] {
			batch.Delete(id)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

func (b *BleveIndex) ids() ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve listing failed: %w", err)
	}
	out := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = hit.ID
	}
	return out, nil
}

// Search returns up to limit articles matching any query term in title, synonyms, codes or
// content, title and synonym matches boosted.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	titleBoost, synonymBoost, fuzziness := defaultTitleBoost, defaultSynonymBoost, 0
	var filters []blevequery.Query
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		if opts.SynonymBoost > 0 {
			synonymBoost = opts.SynonymBoost
		}
		fuzziness = opts.Fuzziness
		filters = append(filters, termFilter(fieldIntent, opts.Intent), termFilter(fieldCategory, opts.Category))
	}

	boosts := map[string]float64{
		fieldTitle:    titleBoost,
		fieldSlug:     titleBoost,
		fieldSynonyms: synonymBoost,
		fieldCodes:    synonymBoost,
		fieldContent:  1.0,
	}
	fieldQueries := make([]blevequery.Query, 0, len(textFields))
	for _, f := range textFields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(f)
		mq.SetBoost(boosts[f])
		if fuzziness > 0 {
			mq.SetFuzziness(fuzziness)
		}
		fieldQueries = append(fieldQueries, mq)
	}
	var q blevequery.Query = bleve.NewDisjunctionQuery(fieldQueries...)
	musts := []blevequery.Query{q}
	for _, f := range filters {
		if f != nil {
			musts = append(musts, f)
		}
	}
	if len(musts) > 1 {
		q = bleve.NewConjunctionQuery(musts...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{fieldTitle, fieldIntent, fieldCategory}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Hit, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = &Hit{
			ID:       hit.ID,
			Title:    stringField(hit.Fields, fieldTitle),
			Intent:   stringField(hit.Fields, fieldIntent),
			Category: stringField(hit.Fields, fieldCategory),
			Score:    hit.Score,
		}
	}
	return out, nil
}

func termFilter(field, value string) blevequery.Query {
	if value == "" {
		return nil
	}
	tq := bleve.NewTermQuery(value)
	tq.SetField(field)
	return tq
}

func stringField(fields map[string]interface{}, name string) string {
	s, _ := fields[name].(string)
	return s
}

// Terms returns the vocabulary of the title, synonyms and content fields with document counts.
func (b *BleveIndex) Terms() (map[string]int, error) {
	terms := make(map[string]int)
	for _, f := range []string{fieldTitle, fieldSynonyms, fieldContent} {
		dict, err := b.index.FieldDict(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s dictionary: %w", f, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if int(entry.Count) > terms[entry.Term] {
				terms[entry.Term] = int(entry.Count)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}

// DocCount returns the number of indexed articles.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
