package vecindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/avollmer/corpus/chunker"
)

func newSQLiteFixture(t *testing.T) (*SQLite, *fixture) {
	t.Helper()
	f := newFixture(t)
	store, err := NewSQLite(filepath.Join(f.root, "sqlite"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, f
}

func TestSQLiteUpsertAndQuery(t *testing.T) {
	store, f := newSQLiteFixture(t)
	chunks := []chunker.Chunk{
		f.chunk(t, "d", "rel_1", "chk_far", "far", []float64{0, 1}),
		f.chunk(t, "d", "rel_1", "chk_near", "near", []float64{1, 0}),
	}
	if err := store.Upsert(context.Background(), "d", "rel_1", chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := store.Query(context.Background(), "d", "rel_1", []float64{1, 0}, nil, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results", len(got))
	}
	if got[0].ChunkID != "chk_near" {
		t.Fatalf("order = %s, %s", got[0].ChunkID, got[1].ChunkID)
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("scores not descending: %f, %f", got[0].Score, got[1].Score)
	}
}

func TestSQLiteScopesByRelease(t *testing.T) {
	store, f := newSQLiteFixture(t)
	one := f.chunk(t, "d", "rel_1", "chk_1", "one", []float64{1, 0})
	two := f.chunk(t, "d", "rel_2", "chk_2", "two", []float64{1, 0})
	if err := store.Upsert(context.Background(), "d", "rel_1", []chunker.Chunk{one}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Upsert(context.Background(), "d", "rel_2", []chunker.Chunk{two}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := store.Query(context.Background(), "d", "rel_1", []float64{1, 0}, nil, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "chk_1" {
		t.Fatalf("cross-release leakage: %+v", got)
	}
}

func TestSQLiteFilters(t *testing.T) {
	store, f := newSQLiteFixture(t)
	a := f.chunk(t, "d", "rel_1", "chk_a", "a", []float64{1, 0})
	a.Level = "intro"
	b := f.chunk(t, "d", "rel_1", "chk_b", "b", []float64{1, 0})
	b.Level = "advanced"
	if err := store.Upsert(context.Background(), "d", "rel_1", []chunker.Chunk{a, b}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := store.Query(context.Background(), "d", "rel_1", []float64{1, 0},
		map[string]string{"level": "intro"}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "chk_a" {
		t.Fatalf("got %+v", got)
	}
}

func TestSQLiteRejectsScopeMismatch(t *testing.T) {
	store, f := newSQLiteFixture(t)
	ch := f.chunk(t, "other", "rel_1", "chk_x", "text", []float64{1})
	err := store.Upsert(context.Background(), "d", "rel_1", []chunker.Chunk{ch})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}
