package vector

import "fmt"

// IndexType names a vector index implementation.
type IndexType string

const (
	// IndexTypeMemory is brute-force search held in memory and persisted to a single file.
	IndexTypeMemory IndexType = "memory"
)

// NewVectorIndex creates a vector index of the given type ("" means memory). A zero dimensions
// value is learned from the first upsert.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory)", indexType)
	}
}
