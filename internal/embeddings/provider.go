// Package embeddings defines the Provider interface the retrieval service
// uses to map knowledge-base text to dense vectors.
//
// Two backends ship with voicedesk: the hosted OpenAI embeddings API
// (subpackage openai) and a local Ollama server (subpackage ollama).
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over a text-embedding backend. Every vector
// returned by one Provider instance has length Dimensions(); vectors from
// different providers must not be mixed in one similarity computation.
type Provider interface {
	// Embed computes the embedding for a single text. It respects ctx
	// cancellation.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one provider call. The result is ordered
	// like texts; on error the whole result is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length produced by this provider.
	Dimensions() int

	// ModelID returns the backend model identifier, for logging and for
	// detecting index/model mismatches.
	ModelID() string
}
