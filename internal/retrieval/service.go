package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voicedesk/voicedesk/internal/embeddings"
	"github.com/voicedesk/voicedesk/internal/retrieval/store"
)

// NoResultsMessage is returned when neither the vector store nor the
// keyword fallback finds anything for a query.
const NoResultsMessage = "No information found for this query. Please check the help centre directly."

// embedBatchSize caps the number of chunks sent to the embedding service in
// one call during indexing.
const embedBatchSize = 50

// DefaultTopK is the result count used when the caller does not specify one.
const DefaultTopK = 3

// ErrEmbedding tags embedding-service failures. Fatal during indexing;
// during query it routes the search to the keyword fallback.
var ErrEmbedding = errors.New("embedding service failure")

// Config configures a retrieval Service.
type Config struct {
	// CorpusPath is the consolidated corpus file.
	CorpusPath string

	// ChunkSize and Overlap control chunking; zero values select the
	// defaults (500/100).
	ChunkSize int
	Overlap   int

	// UseVectorStore disables semantic search entirely when false: every
	// query goes to the keyword fallback and Index refuses to run.
	UseVectorStore bool
}

// Service answers knowledge-base queries. It owns the vector store handle
// and the embedding provider; after indexing it is read-only and safe for
// concurrent use.
type Service struct {
	cfg      Config
	embedder embeddings.Provider
	store    store.Store

	corpusOnce sync.Once
	corpus     string
	corpusErr  error
}

// New creates a Service. st may be nil when cfg.UseVectorStore is false.
func New(cfg Config, embedder embeddings.Provider, st store.Store) (*Service, error) {
	if cfg.UseVectorStore {
		if embedder == nil {
			return nil, fmt.Errorf("retrieval: embedding provider required when vector store enabled")
		}
		if st == nil {
			return nil, fmt.Errorf("retrieval: store required when vector store enabled")
		}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = DefaultOverlap
	}
	return &Service{cfg: cfg, embedder: embedder, store: st}, nil
}

// Index chunks and embeds the corpus into the vector store. When the store
// already holds chunks and force is false, indexing is skipped and the
// existing count is returned. With force true the store is cleared first;
// re-indexing the same corpus yields identical chunk ids.
//
// An embedding failure during indexing is fatal: the error wraps
// ErrEmbedding and nothing further is written.
func (s *Service) Index(ctx context.Context, force bool) (int, error) {
	if !s.cfg.UseVectorStore {
		return 0, fmt.Errorf("retrieval: vector store disabled by configuration")
	}

	existing, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("retrieval: count existing chunks: %w", err)
	}
	if existing > 0 && !force {
		slog.Info("retrieval index already populated", "chunks", existing)
		return existing, nil
	}
	if existing > 0 {
		if err := s.store.Clear(ctx); err != nil {
			return 0, fmt.Errorf("retrieval: clear store: %w", err)
		}
	}

	content, err := LoadCorpus(s.cfg.CorpusPath)
	if err != nil {
		return 0, err
	}
	sections := ParseCorpus(content)
	slog.Info("retrieval indexing corpus",
		"path", s.cfg.CorpusPath,
		"sections", len(sections),
		"model", s.embedder.ModelID(),
	)

	var chunks []store.Chunk
	nextID := 0
	for _, sec := range sections {
		for ord, text := range ChunkText(sec.Text, s.cfg.ChunkSize, s.cfg.Overlap) {
			chunks = append(chunks, store.Chunk{
				ID:      fmt.Sprintf("chunk_%d", nextID),
				Text:    text,
				Source:  sec.Source,
				Title:   sec.Title,
				Section: sec.Index,
				Ordinal: ord,
			})
			nextID++
		}
	}

	for off := 0; off < len(chunks); off += embedBatchSize {
		batch := chunks[off:min(off+embedBatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("retrieval: embed batch at %d: %w: %w", off, ErrEmbedding, err)
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}
		if err := s.store.Add(ctx, batch); err != nil {
			return 0, fmt.Errorf("retrieval: store batch at %d: %w", off, err)
		}
		slog.Debug("retrieval batch indexed", "offset", off, "size", len(batch))
	}

	slog.Info("retrieval indexing complete", "chunks", len(chunks))
	return len(chunks), nil
}

// Search answers a query with up to k results (DefaultTopK when k <= 0),
// each formatted as "[title]\ntext" and joined by a "---" separator line.
//
// The vector store is consulted first; an embedding or store failure at
// query time falls back to keyword search over the raw corpus rather than
// failing the tool call.
func (s *Service) Search(ctx context.Context, query string, k int) (string, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	if s.cfg.UseVectorStore && s.store != nil {
		result, err := s.semanticSearch(ctx, query, k)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("retrieval semantic search failed; using keyword fallback", "err", err)
	}

	corpus, err := s.loadCorpusOnce()
	if err != nil {
		return "", err
	}
	return KeywordSearch(corpus, query), nil
}

// semanticSearch embeds the query once, over-fetches 2k candidates,
// deduplicates by exact text, and formats the top k.
func (s *Service) semanticSearch(ctx context.Context, query string, k int) (string, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	hits, err := s.store.Search(ctx, vec, 2*k)
	if err != nil {
		return "", fmt.Errorf("retrieval: store search: %w", err)
	}
	if len(hits) == 0 {
		return NoResultsMessage, nil
	}

	seen := make(map[string]struct{}, len(hits))
	var formatted []string
	for _, h := range hits {
		if _, dup := seen[h.Text]; dup {
			continue
		}
		seen[h.Text] = struct{}{}

		text := h.Text
		if h.Title != "" {
			text = "[" + h.Title + "]\n" + text
		}
		formatted = append(formatted, text)
		if len(formatted) >= k {
			break
		}
	}
	return strings.Join(formatted, "\n\n---\n\n"), nil
}

// loadCorpusOnce lazily reads the raw corpus for the keyword fallback and
// caches it for the service lifetime.
func (s *Service) loadCorpusOnce() (string, error) {
	s.corpusOnce.Do(func() {
		s.corpus, s.corpusErr = LoadCorpus(s.cfg.CorpusPath)
	})
	return s.corpus, s.corpusErr
}
