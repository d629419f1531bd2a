package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// chunksFileName is the single JSON document holding all chunks inside the
// persistence directory.
const chunksFileName = "chunks.json"

var _ Store = (*FileStore)(nil)

// FileStore is a vector store persisted as one JSON file in a directory.
// The full chunk set is held in memory; Search is a linear cosine scan,
// which is fine for help-centre corpora of a few thousand chunks.
//
// All methods are safe for concurrent use.
type FileStore struct {
	dir string

	mu     sync.RWMutex
	chunks []Chunk
	byID   map[string]int
}

// OpenFileStore opens (creating if needed) a file store in dir and loads any
// existing chunk set.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create dir %q: %w", dir, err)
	}

	fs := &FileStore{dir: dir, byID: make(map[string]int)}

	data, err := os.ReadFile(filepath.Join(dir, chunksFileName))
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %q: %w", chunksFileName, err)
	}
	if err := json.Unmarshal(data, &fs.chunks); err != nil {
		return nil, fmt.Errorf("filestore: decode %q: %w", chunksFileName, err)
	}
	for i, c := range fs.chunks {
		fs.byID[c.ID] = i
	}
	return fs, nil
}

// Add implements Store. The chunk set is rewritten to disk after the upsert.
func (fs *FileStore) Add(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, c := range chunks {
		if i, ok := fs.byID[c.ID]; ok {
			fs.chunks[i] = c
			continue
		}
		fs.byID[c.ID] = len(fs.chunks)
		fs.chunks = append(fs.chunks, c)
	}
	return fs.persistLocked()
}

// Search implements Store.
func (fs *FileStore) Search(ctx context.Context, embedding []float32, limit int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	results := make([]Result, 0, len(fs.chunks))
	for _, c := range fs.chunks {
		results = append(results, Result{
			Chunk:      c,
			Similarity: CosineSimilarity(embedding, c.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count implements Store.
func (fs *FileStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.chunks), nil
}

// Clear implements Store.
func (fs *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.chunks = nil
	fs.byID = make(map[string]int)
	return fs.persistLocked()
}

// Close implements Store. The file store holds no open handles.
func (fs *FileStore) Close() error { return nil }

// persistLocked writes the chunk set atomically (write temp, rename).
// Callers must hold mu.
func (fs *FileStore) persistLocked() error {
	data, err := json.Marshal(fs.chunks)
	if err != nil {
		return fmt.Errorf("filestore: encode chunks: %w", err)
	}
	tmp := filepath.Join(fs.dir, chunksFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write temp: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(fs.dir, chunksFileName)); err != nil {
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}
