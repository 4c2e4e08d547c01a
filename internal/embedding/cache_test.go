package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

type countingEmbedder struct {
	*MockEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.MockEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	e := NewCachedEmbedder(inner, 4)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "docker setup")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := e.Embed(ctx, "docker setup")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if &a1[0] != &a2[0] {
		t.Error("expected the cached slice")
	}
	if e.Dimensions() != 8 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

func TestCachedEmbedder_ErrorNotCached(t *testing.T) {
	inner := NewMockEmbedder(4)
	inner.Err = errors.New("down")
	e := NewCachedEmbedder(inner, 4)
	if _, err := e.Embed(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	inner.Err = nil
	if _, err := e.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("after recovery: %v", err)
	}
}
