package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/adapters/driven/embedding/hash"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// queryEmbedder embeds every query as the same vector and counts calls.
// The first transient calls fail with a retryable error. It reports no
// fixed dimensions.
type queryEmbedder struct {
	mockEmbeddingService
	query     []float32
	err       error
	transient int
}

func (q *queryEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.transient > 0 {
		q.transient--
		return nil, &domain.EmbeddingError{Op: "embed", Transient: true, Err: errors.New("503 service unavailable")}
	}
	return q.query, q.err
}

func (q *queryEmbedder) Dimensions() int { return 0 }

// seedStore writes records with explicit embeddings, one document per record,
// in the given order.
func seedStore(t *testing.T, store driven.VectorStore, records ...domain.IndexedRecord) {
	t.Helper()
	for _, rec := range records {
		require.NoError(t, store.ReplaceDocument(context.Background(), rec.Source, []domain.IndexedRecord{rec}))
	}
}

func rec(id, source, docType string, updated time.Time, vec ...float32) domain.IndexedRecord {
	return domain.IndexedRecord{
		Chunk: domain.Chunk{
			ID:         id,
			Content:    "content of " + id,
			Source:     source,
			DocType:    docType,
			LastUpdate: updated,
		},
		Embedding: vec,
	}
}

var (
	jan = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	jun = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
)

func newVectorFixture(t *testing.T) (*memory.VectorStore, *queryEmbedder) {
	t.Helper()
	store := memory.NewVectorStore()
	seedStore(t, store,
		rec("close", "a.md", "contract", jan, 1, 0.1),
		rec("closest", "b.md", "policy", jun, 1, 0),
		rec("far", "c.md", "contract", jun, 0, 1),
		rec("mid", "d.md", "contract", jun, 1, 1),
	)
	return store, &queryEmbedder{query: []float32{1, 0}}
}

func ids(items []domain.ScoredChunk) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Chunk.ID
	}
	return out
}

func TestRetrievalService_Vector(t *testing.T) {
	store, embedder := newVectorFixture(t)
	svc := NewRetrievalService(store, embedder, WithDefaultMode(domain.SearchModeVector))

	result, err := svc.Retrieve(context.Background(), "payment terms", domain.RetrieveOptions{K: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"closest", "close", "mid"}, ids(result.Items))
	assert.Equal(t, domain.SearchModeVector, result.Mode)
	for i := 1; i < len(result.Items); i++ {
		assert.GreaterOrEqual(t, result.Items[i-1].Score, result.Items[i].Score)
	}
}

func TestRetrievalService_Filter(t *testing.T) {
	store, embedder := newVectorFixture(t)
	svc := NewRetrievalService(store, embedder, WithDefaultMode(domain.SearchModeVector))

	filter, err := domain.ParseFilter("doc_type eq 'contract' and last_update ge 2024-03-01")
	require.NoError(t, err)

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 5, Filter: filter})
	require.NoError(t, err)

	assert.Equal(t, []string{"mid", "far"}, ids(result.Items))
	for _, it := range result.Items {
		assert.Equal(t, "contract", it.Chunk.DocType)
	}
}

func TestRetrievalService_EmptyFilterMatchesNothing(t *testing.T) {
	store, embedder := newVectorFixture(t)
	svc := NewRetrievalService(store, embedder, WithDefaultMode(domain.SearchModeVector))

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 5, Filter: &domain.Filter{}})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Zero(t, embedder.calls)
}

func TestRetrievalService_NoMatchFilter(t *testing.T) {
	store, embedder := newVectorFixture(t)
	svc := NewRetrievalService(store, embedder, WithDefaultMode(domain.SearchModeVector))

	filter, err := domain.ParseFilter("doc_type eq 'invoice'")
	require.NoError(t, err)

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 5, Filter: filter})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}

func TestRetrievalService_TiesKeepInsertionOrder(t *testing.T) {
	store := memory.NewVectorStore()
	seedStore(t, store,
		rec("first", "a.md", "doc", jan, 1, 0),
		rec("second", "b.md", "doc", jan, 1, 0),
		rec("third", "c.md", "doc", jan, 1, 0),
	)
	svc := NewRetrievalService(store, &queryEmbedder{query: []float32{1, 0}}, WithDefaultMode(domain.SearchModeVector))

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ids(result.Items))
}

func TestRetrievalService_UsageErrors(t *testing.T) {
	store, embedder := newVectorFixture(t)
	svc := NewRetrievalService(store, embedder)

	tests := []struct {
		name  string
		query string
		opts  domain.RetrieveOptions
	}{
		{"empty query", "  ", domain.RetrieveOptions{K: 3}},
		{"zero k", "q", domain.RetrieveOptions{K: 0}},
		{"negative k", "q", domain.RetrieveOptions{K: -1}},
		{"unknown mode", "q", domain.RetrieveOptions{K: 1, Mode: "fuzzy"}},
		{"text only without lexical index", "q", domain.RetrieveOptions{K: 1, Mode: domain.SearchModeTextOnly}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Retrieve(context.Background(), tt.query, tt.opts)
			var usage *domain.UsageError
			assert.ErrorAs(t, err, &usage)
		})
	}
	assert.Zero(t, embedder.calls, "usage errors must not call the embedder")
}

func TestRetrievalService_InvalidFilter(t *testing.T) {
	store, embedder := newVectorFixture(t)
	svc := NewRetrievalService(store, embedder)

	bad := &domain.Filter{Predicates: []domain.Predicate{{Field: "colour", Op: domain.OpEq, Value: "red"}}}
	_, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 1, Filter: bad})
	assert.ErrorIs(t, err, domain.ErrRetrieval)
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)
}

func TestRetrievalService_EmbeddingFailure(t *testing.T) {
	store, _ := newVectorFixture(t)
	svc := NewRetrievalService(store, &queryEmbedder{err: errors.New("connection refused")})

	_, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 1})
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestRetrievalService_RetriesTransientQueryEmbedding(t *testing.T) {
	store, embedder := newVectorFixture(t)
	embedder.transient = 1
	svc := NewRetrievalService(store, embedder,
		WithRetrievalBackOff(zeroBackOff), WithRetrievalTimeouts(time.Second, 0))

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"closest"}, ids(result.Items))
	assert.Equal(t, 2, embedder.calls)
}

func TestRetrievalService_QueryEmbeddingRetriesExhausted(t *testing.T) {
	store, embedder := newVectorFixture(t)
	embedder.transient = 5
	svc := NewRetrievalService(store, embedder, WithRetrievalBackOff(zeroBackOff), WithRetrievalRetries(1))

	_, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 1})
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.True(t, domain.IsTransient(err))
	// One call plus one retry.
	assert.Equal(t, 2, embedder.calls)
}

func TestRetrievalService_EmbeddingModelMismatch(t *testing.T) {
	store := memory.NewVectorStore()
	indexer := NewIndexService(nil, store, &mockEmbeddingService{}, WithBackOff(zeroBackOff))
	_, err := indexer.Index(context.Background(), []domain.Chunk{chunk("doc.md", 0, "payment terms")})
	require.NoError(t, err)

	engine := &mockSearchEngine{hits: []driven.SearchHit{{ChunkID: "doc.md#0", Score: 1}}}
	svc := NewRetrievalService(store, hash.NewEmbeddingService(256), WithLexicalSearch(engine))

	_, err = svc.Retrieve(context.Background(), "payment terms", domain.RetrieveOptions{K: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUsage)
	assert.Contains(t, err.Error(), "mock (4 dims)")
	assert.Contains(t, err.Error(), "hash-256 (256 dims)")

	// Lexical retrieval never compares vectors.
	result, err := svc.Retrieve(context.Background(), "payment terms",
		domain.RetrieveOptions{K: 1, Mode: domain.SearchModeTextOnly})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
}

func TestRetrievalService_QueryDimensionMismatch(t *testing.T) {
	store, embedder := newVectorFixture(t)
	require.NoError(t, store.SetEmbeddingSpace(context.Background(), domain.EmbeddingSpace{Model: "mock", Dimensions: 3}))
	svc := NewRetrievalService(store, embedder)

	_, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 1})
	assert.ErrorIs(t, err, domain.ErrUsage)
	assert.Contains(t, err.Error(), "2 dimensions")
	assert.Equal(t, 1, embedder.calls)
}

func TestRetrievalService_TextOnlySkipsEmbedder(t *testing.T) {
	store, embedder := newVectorFixture(t)
	engine := &mockSearchEngine{hits: []driven.SearchHit{
		{ChunkID: "far", Score: 3.2},
		{ChunkID: "gone", Score: 2.0},
		{ChunkID: "close", Score: 1.1},
	}}
	svc := NewRetrievalService(store, embedder, WithLexicalSearch(engine))

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 5, Mode: domain.SearchModeTextOnly})
	require.NoError(t, err)

	// "gone" is not in the store and is skipped.
	assert.Equal(t, []string{"far", "close"}, ids(result.Items))
	assert.Zero(t, embedder.calls)
}

func TestRetrievalService_Hybrid(t *testing.T) {
	store, embedder := newVectorFixture(t)
	engine := &mockSearchEngine{hits: []driven.SearchHit{
		{ChunkID: "far", Score: 9},
		{ChunkID: "close", Score: 5},
	}}
	svc := NewRetrievalService(store, embedder, WithLexicalSearch(engine))

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 2})
	require.NoError(t, err)

	assert.Equal(t, domain.SearchModeHybrid, result.Mode)
	assert.False(t, result.Degraded)
	// Appearing in both lists beats leading only one of them.
	assert.Equal(t, []string{"close", "far"}, ids(result.Items))
}

func TestRetrievalService_HybridDegraded(t *testing.T) {
	store, embedder := newVectorFixture(t)
	engine := &mockSearchEngine{searchErr: errors.New("index corrupt")}
	svc := NewRetrievalService(store, embedder, WithLexicalSearch(engine))

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 2})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, []string{"closest", "close"}, ids(result.Items))
}

func TestRetrievalService_HybridBothLegsFail(t *testing.T) {
	store, embedder := newVectorFixture(t)
	failing := &failingVectorStore{VectorStore: store, searchErr: errors.New("locked")}
	engine := &mockSearchEngine{searchErr: errors.New("index corrupt")}
	svc := NewRetrievalService(failing, embedder, WithLexicalSearch(engine))

	_, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 2})
	assert.ErrorIs(t, err, domain.ErrRetrieval)
}

func TestRetrievalService_HybridWithoutLexicalRunsVector(t *testing.T) {
	store, embedder := newVectorFixture(t)
	svc := NewRetrievalService(store, embedder)

	result, err := svc.Retrieve(context.Background(), "q", domain.RetrieveOptions{K: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeVector, result.Mode)
}

func TestReciprocalRankFusion(t *testing.T) {
	a := []candidate{{chunkID: "x"}, {chunkID: "y"}}
	b := []candidate{{chunkID: "y"}, {chunkID: "z"}}

	fused := reciprocalRankFusion(60, a, b)
	require.Len(t, fused, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{fused[0].chunkID, fused[1].chunkID, fused[2].chunkID})
	assert.InDelta(t, 1.0/61, fused[0].score, 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, fused[1].score, 1e-12)
	assert.InDelta(t, 1.0/62, fused[2].score, 1e-12)
}
