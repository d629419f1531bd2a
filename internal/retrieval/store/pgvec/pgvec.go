// Package pgvec implements the retrieval vector store on PostgreSQL with the
// pgvector extension, using an HNSW index for approximate nearest-neighbour
// search. Use it instead of the file store when the corpus outgrows a single
// process or several gateway replicas share one index.
package pgvec

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/voicedesk/voicedesk/internal/retrieval/store"
)

var _ store.Store = (*Store)(nil)

// Store is a pgvector-backed store.Store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn and ensures the chunks table and its
// HNSW index exist. dims must match the embedding provider's Dimensions().
func Open(ctx context.Context, dsn string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("pgvec: dims must be positive, got %d", dims)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvec: connect: %w", err)
	}

	schema := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kb_chunks (
			id          text PRIMARY KEY,
			content     text NOT NULL,
			embedding   vector(%d) NOT NULL,
			source      text NOT NULL DEFAULT '',
			title       text NOT NULL DEFAULT '',
			section_idx int  NOT NULL DEFAULT 0,
			chunk_idx   int  NOT NULL DEFAULT 0
		)`, dims),
		`CREATE INDEX IF NOT EXISTS kb_chunks_embedding_idx
			ON kb_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, q := range schema {
		if _, err := pool.Exec(ctx, q); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pgvec: ensure schema: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

// Add implements store.Store.
func (s *Store) Add(ctx context.Context, chunks []store.Chunk) error {
	const q = `
		INSERT INTO kb_chunks (id, content, embedding, source, title, section_idx, chunk_idx)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content     = EXCLUDED.content,
			embedding   = EXCLUDED.embedding,
			source      = EXCLUDED.source,
			title       = EXCLUDED.title,
			section_idx = EXCLUDED.section_idx,
			chunk_idx   = EXCLUDED.chunk_idx`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(q, c.ID, c.Text, pgvector.NewVector(c.Embedding), c.Source, c.Title, c.Section, c.Ordinal)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pgvec: add chunks: %w", err)
	}
	return nil
}

// Search implements store.Store. Cosine distance is converted to similarity
// so callers see the same scale as the file store.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]store.Result, error) {
	const q = `
		SELECT id, content, embedding, source, title, section_idx, chunk_idx,
		       1 - (embedding <=> $1) AS similarity
		FROM   kb_chunks
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("pgvec: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Result, error) {
		var (
			r   store.Result
			vec pgvector.Vector
		)
		if err := row.Scan(&r.ID, &r.Text, &vec, &r.Source, &r.Title, &r.Section, &r.Ordinal, &r.Similarity); err != nil {
			return store.Result{}, err
		}
		r.Embedding = vec.Slice()
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvec: scan rows: %w", err)
	}
	return results, nil
}

// Count implements store.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM kb_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvec: count: %w", err)
	}
	return n, nil
}

// Clear implements store.Store.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE kb_chunks`); err != nil {
		return fmt.Errorf("pgvec: clear: %w", err)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
