package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	fileMagic   = "MBVX"
	fileVersion = uint32(1)
)

// MemoryIndex is an in-memory vector index using brute-force L2 search.
type MemoryIndex struct {
	dimensions int
	entries    []entry
	pos        map[string]int
	mu         sync.RWMutex
}

type entry struct {
	id       string
	vector   []float32
	document string
	metadata Metadata
}

// NewMemoryIndex creates an in-memory vector index. A zero dimensions value is learned from the
// first upsert.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	return &MemoryIndex{dimensions: dimensions, pos: make(map[string]int)}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector size, or 0 while still unknown.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Upsert inserts entries, replacing any with the same id. documents and metadata may be nil.
func (m *MemoryIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadata []Metadata) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	if documents != nil && len(documents) != len(ids) {
		return fmt.Errorf("ids and documents length mismatch")
	}
	if metadata != nil && len(metadata) != len(ids) {
		return fmt.Errorf("ids and metadata length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dims := m.dimensions
	for _, v := range vectors {
		if dims == 0 {
			dims = len(v)
		}
		if len(v) != dims || dims == 0 {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), dims)
		}
	}
	m.dimensions = dims

	for i, id := range ids {
		e := entry{id: id, vector: append([]float32(nil), vectors[i]...)}
		if documents != nil {
			e.document = documents[i]
		}
		if metadata != nil {
			e.metadata = copyMetadata(metadata[i])
		}
		if p, ok := m.pos[id]; ok {
			m.entries[p] = e
			continue
		}
		m.pos[id] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return nil
}

// Query returns the k nearest entries matching filter, ordered by distance then id.
func (m *MemoryIndex) Query(ctx context.Context, query []float32, k int, filter Filter) ([]*Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}

	hits := make([]*Neighbor, 0, len(m.entries))
	for _, e := range m.entries {
		if filter != nil && !filter.Match(e.metadata) {
			continue
		}
		hits = append(hits, &Neighbor{
			ID:       e.id,
			Distance: L2Distance(query, e.vector),
			Document: e.document,
			Metadata: copyMetadata(e.metadata),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove deletes entries by id; unknown ids are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !drop[e.id] {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	m.reindex()
	return nil
}

// Reset removes every entry. A dimensionality learned from upserts is kept.
func (m *MemoryIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.pos = make(map[string]int)
	return nil
}

func (m *MemoryIndex) reindex() {
	m.pos = make(map[string]int, len(m.entries))
	for i, e := range m.entries {
		m.pos[e.id] = i
	}
}

// Save persists the index to path, creating parent directories. The file is written to a
// temporary name and renamed into place. Layout: magic, version, dimensions, count, then per
// entry the length-prefixed id, document and JSON metadata followed by the raw vector.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.encode(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) encode(w io.Writer) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range []uint32{fileVersion, uint32(m.dimensions), uint32(len(m.entries))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, e := range m.entries {
		meta, err := json.Marshal(e.metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", e.id, err)
		}
		for _, field := range [][]byte{[]byte(e.id), []byte(e.document), meta} {
			if err := writeBytes(w, field); err != nil {
				return fmt.Errorf("write entry %s: %w", e.id, err)
			}
		}
		if _, err := w.Write(float32SliceToBytes(e.vector)); err != nil {
			return fmt.Errorf("write vector %s: %w", e.id, err)
		}
	}
	return nil
}

// Load replaces the in-memory contents with the index at path. A missing file is not an error
// and leaves the index unchanged. A configured dimensionality must match the file.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return fmt.Errorf("not a vector index file: %s", path)
	}
	var version, dim, n uint32
	for _, v := range []*uint32{&version, &dim, &n} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read header: %w", err)
		}
	}
	if version != fileVersion {
		return fmt.Errorf("unsupported index file version %d", version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions != 0 && int(dim) != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, m.dimensions)
	}

	entries := make([]entry, 0, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		var fields [3][]byte
		for j := range fields {
			if fields[j], err = readBytes(r); err != nil {
				return fmt.Errorf("read entry %d: %w", i, err)
			}
		}
		var meta Metadata
		if err := json.Unmarshal(fields[2], &meta); err != nil {
			return fmt.Errorf("decode metadata of entry %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		entries = append(entries, entry{
			id:       string(fields[0]),
			document: string(fields[1]),
			metadata: meta,
			vector:   bytesToFloat32Slice(buf),
		})
	}
	m.dimensions = int(dim)
	m.entries = entries
	m.reindex()
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

const maxFieldLen = 64 << 20

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, errors.New("field too large")
	}
	b := make([]byte, n)
	_, err := io.ReadFull(r, b)
	return b, err
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

func copyMetadata(m Metadata) Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
