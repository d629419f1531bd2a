package store

import (
	"context"
	"math"
	"testing"
)

func testChunks() []Chunk {
	return []Chunk{
		{ID: "chunk_0", Text: "alpha", Embedding: []float32{1, 0, 0}, Title: "A"},
		{ID: "chunk_1", Text: "beta", Embedding: []float32{0, 1, 0}, Title: "B"},
		{ID: "chunk_2", Text: "gamma", Embedding: []float32{0.7, 0.7, 0}, Title: "C"},
	}
}

func TestFileStoreAddSearch(t *testing.T) {
	fs, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := fs.Add(ctx, testChunks()); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := fs.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "chunk_0" {
		t.Errorf("top result = %s, want chunk_0", results[0].ID)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not in descending similarity order")
	}
	if math.Abs(results[0].Similarity-1) > 1e-6 {
		t.Errorf("exact match similarity = %f, want 1", results[0].Similarity)
	}
}

func TestFileStorePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := OpenFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Add(ctx, testChunks()); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	n, err := reopened.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("reopened store holds %d chunks, want 3", n)
	}

	results, err := reopened.Search(ctx, []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "chunk_1" {
		t.Errorf("top result after reopen = %s, want chunk_1", results[0].ID)
	}
}

func TestFileStoreUpsert(t *testing.T) {
	fs, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := fs.Add(ctx, testChunks()); err != nil {
		t.Fatal(err)
	}
	if err := fs.Add(ctx, []Chunk{{ID: "chunk_0", Text: "alpha v2", Embedding: []float32{1, 0, 0}}}); err != nil {
		t.Fatal(err)
	}

	n, _ := fs.Count(ctx)
	if n != 3 {
		t.Fatalf("upsert changed count to %d, want 3", n)
	}
	results, _ := fs.Search(ctx, []float32{1, 0, 0}, 1)
	if results[0].Text != "alpha v2" {
		t.Errorf("upsert did not replace text: %q", results[0].Text)
	}
}

func TestFileStoreClear(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := OpenFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Add(ctx, testChunks()); err != nil {
		t.Fatal(err)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := fs.Count(ctx); n != 0 {
		t.Fatalf("count after clear = %d, want 0", n)
	}

	// Clear persists too.
	reopened, err := OpenFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := reopened.Count(ctx); n != 0 {
		t.Fatalf("reopened count after clear = %d, want 0", n)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}
