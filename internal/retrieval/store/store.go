// Package store defines the vector store behind the retrieval service and a
// file-backed implementation. A PostgreSQL/pgvector implementation lives in
// the pgvec subpackage.
package store

import (
	"context"
	"math"
)

// Chunk is one embedded piece of a knowledge-base section.
type Chunk struct {
	// ID is the stable chunk identifier (e.g. "chunk_42").
	ID string `json:"id"`

	// Text is the trimmed chunk prose.
	Text string `json:"text"`

	// Embedding is the dense vector for Text. All chunks in one store share
	// a dimension.
	Embedding []float32 `json:"embedding"`

	// Source is the URL of the page the section came from.
	Source string `json:"source"`

	// Title is the page title of the section.
	Title string `json:"title"`

	// Section is the section ordinal within the corpus.
	Section int `json:"section"`

	// Ordinal is the chunk ordinal within its section.
	Ordinal int `json:"ordinal"`
}

// Result is a search hit with its cosine similarity to the query (1 is an
// exact match).
type Result struct {
	Chunk
	Similarity float64
}

// Store persists embedded chunks and serves nearest-neighbour queries.
// Implementations must support concurrent readers; Add and Clear are only
// called by the one-shot indexer.
type Store interface {
	// Add upserts chunks by ID.
	Add(ctx context.Context, chunks []Chunk) error

	// Search returns up to limit chunks ordered by descending cosine
	// similarity to the query embedding.
	Search(ctx context.Context, embedding []float32, limit int) ([]Result, error)

	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Clear removes all chunks.
	Clear(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// CosineSimilarity computes the cosine similarity of two equal-length
// vectors. Returns 0 when either vector has zero magnitude or the lengths
// differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
