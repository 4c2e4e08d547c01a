package catalog

import "time"

// FormatVersion is written to the index and relationship documents.
const FormatVersion = "1.0"

// Index is the persisted catalog index (catalog.json). It is the sole source of truth for
// which articles exist and where their files live.
type Index struct {
	Version       string    `json:"version"`
	BuildID       string    `json:"build_id"`
	CreatedAt     time.Time `json:"created_at"`
	SourceFile    string    `json:"source_file"`
	TotalArticles int       `json:"total_articles"`
	// Order lists article ids in document order.
	Order    []string          `json:"order"`
	Articles map[string]*Entry `json:"articles"`
}

// Node is one article's links in the relationship graph.
type Node struct {
	Title        string   `json:"title"`
	Intent       string   `json:"intent"`
	Category     string   `json:"category"`
	HeadingLevel int      `json:"heading_level"`
	Parent       string   `json:"parent,omitempty"`
	Children     []string `json:"children"`
	SeeAlso      []string `json:"see_also"`
	Images       []string `json:"images"`
	Synonyms     []string `json:"synonyms"`
	Codes        []string `json:"codes"`
}

// Graph is the persisted relationship document (relationships.json).
type Graph struct {
	Version   string           `json:"version"`
	BuildID   string           `json:"build_id"`
	CreatedAt time.Time        `json:"created_at"`
	Articles  map[string]*Node `json:"articles"`
}

// BuildGraph builds the parent/children/see-also graph of articles.
func BuildGraph(articles []*Article) *Graph {
	g := &Graph{Version: FormatVersion, Articles: make(map[string]*Node, len(articles))}
	for _, a := range articles {
		g.Articles[a.ID] = &Node{
			Title:        a.Title,
			Intent:       a.Intent,
			Category:     a.Category,
			HeadingLevel: a.HeadingLevel,
			Parent:       a.ParentID,
			Children:     nonNil(a.ChildrenIDs),
			SeeAlso:      nonNil(a.SeeAlsoIDs),
			Images:       nonNil(a.Images),
			Synonyms:     nonNil(a.Synonyms),
			Codes:        nonNil(a.Codes),
		}
	}
	return g
}

// BuildIndex builds the catalog index of articles.
func BuildIndex(articles []*Article, source string) *Index {
	idx := &Index{
		Version:       FormatVersion,
		SourceFile:    source,
		TotalArticles: len(articles),
		Order:         make([]string, 0, len(articles)),
		Articles:      make(map[string]*Entry, len(articles)),
	}
	for _, a := range articles {
		idx.Order = append(idx.Order, a.ID)
		idx.Articles[a.ID] = a.entry()
	}
	return idx
}

// Entries returns the index entries in document order.
func (idx *Index) Entries() []*Entry {
	out := make([]*Entry, 0, len(idx.Articles))
	for _, id := range idx.Order {
		if e, ok := idx.Articles[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Siblings returns the other children of id's parent, in the parent's order.
func (g *Graph) Siblings(id string) []string {
	node, ok := g.Articles[id]
	if !ok || node.Parent == "" {
		return nil
	}
	parent, ok := g.Articles[node.Parent]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(parent.Children))
	for _, c := range parent.Children {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}
