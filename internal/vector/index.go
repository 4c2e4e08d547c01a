// Package vector provides the vector-index collaborator: chunk vectors with their documents and
// metadata, searched by L2 distance under metadata equality filters.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimensionality.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata is the flat string metadata stored with each vector.
type Metadata map[string]string

// VectorIndex stores chunk vectors and answers filtered nearest-neighbour queries.
type VectorIndex interface {
	// Upsert inserts or replaces entries; all slices must have the same length.
	Upsert(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadata []Metadata) error
	// Query returns up to k neighbours matching filter (nil matches everything), nearest first.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]*Neighbor, error)
	Remove(ctx context.Context, ids []string) error
	Reset(ctx context.Context) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Neighbor is a single query hit. Distance is the L2 distance to the query vector.
type Neighbor struct {
	ID       string
	Distance float64
	Document string
	Metadata Metadata
}

// Filter selects entries by metadata.
type Filter interface {
	Match(m Metadata) bool
	String() string
}

// Equal matches entries whose Field equals Value.
type Equal struct {
	Field string
	Value string
}

// Eq returns an equality filter.
func Eq(field, value string) Filter {
	return Equal{Field: field, Value: value}
}

func (f Equal) Match(m Metadata) bool { return m[f.Field] == f.Value }

func (f Equal) String() string { return fmt.Sprintf("%s = %q", f.Field, f.Value) }

// AndFilter matches entries accepted by every filter.
type AndFilter struct {
	Filters []Filter
}

// And combines filters with logical AND. Nil filters are dropped; a single remaining filter is
// returned as is and none yields nil.
func And(filters ...Filter) Filter {
	kept := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return AndFilter{Filters: kept}
}

func (f AndFilter) Match(m Metadata) bool {
	for _, sub := range f.Filters {
		if !sub.Match(m) {
			return false
		}
	}
	return true
}

func (f AndFilter) String() string {
	parts := make([]string, len(f.Filters))
	for i, sub := range f.Filters {
		parts[i] = sub.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}
