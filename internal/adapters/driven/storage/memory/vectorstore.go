package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

// VectorStore is an in-memory driven.VectorStore using exhaustive cosine
// search. It is safe for concurrent use; each write holds the lock for its
// whole duration so readers never see half a document.
type VectorStore struct {
	mu      sync.RWMutex
	records map[string]domain.IndexedRecord
	seq     int64
	space   *domain.EmbeddingSpace
}

// NewVectorStore creates an empty store.
func NewVectorStore() *VectorStore {
	return &VectorStore{records: make(map[string]domain.IndexedRecord)}
}

// ReplaceDocument drops every record of document and inserts records.
func (s *VectorStore) ReplaceDocument(_ context.Context, document string, records []domain.IndexedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.records {
		if rec.Document == document {
			delete(s.records, id)
		}
	}
	for _, rec := range records {
		s.seq++
		rec.Seq = s.seq
		rec.Document = document
		rec.Embedding = append([]float32(nil), rec.Embedding...)
		s.records[rec.ID] = rec
	}
	return nil
}

// Search scans every record matching filter.
func (s *VectorStore) Search(
	ctx context.Context, query []float32, k int, filter *domain.Filter,
) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	candidates := make([]vecmath.Scored, 0, len(s.records))
	for id, rec := range s.records {
		if !filter.Matches(rec.Chunk) {
			continue
		}
		candidates = append(candidates, vecmath.Scored{
			ID:         id,
			Similarity: vecmath.Cosine(query, rec.Embedding),
			Seq:        rec.Seq,
		})
	}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := vecmath.Rank(candidates, k)
	hits := make([]driven.VectorHit, len(ranked))
	for i, c := range ranked {
		hits[i] = driven.VectorHit{ChunkID: c.ID, Similarity: c.Similarity, Seq: c.Seq}
	}
	return hits, nil
}

// Get returns the records for ids that exist.
func (s *VectorStore) Get(_ context.Context, ids []string) (map[string]domain.IndexedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.IndexedRecord, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

// Count returns the number of records.
func (s *VectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// EmbeddingSpace returns the recorded space, if any.
func (s *VectorStore) EmbeddingSpace(_ context.Context) (domain.EmbeddingSpace, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.space == nil {
		return domain.EmbeddingSpace{}, false, nil
	}
	return *s.space, true, nil
}

// SetEmbeddingSpace records space.
func (s *VectorStore) SetEmbeddingSpace(_ context.Context, space domain.EmbeddingSpace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space = &space
	return nil
}

// Close is a no-op.
func (s *VectorStore) Close() error {
	return nil
}
