package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// rrfK is the Reciprocal Rank Fusion constant.
const rrfK = 60

// candidate is a ranked hit before hydration.
type candidate struct {
	chunkID string
	score   float64
}

// RetrievalService finds relevant chunks by vector similarity, lexical
// match, or both.
type RetrievalService struct {
	vectors          driven.VectorStore
	search           driven.SearchEngine
	embedder         driven.EmbeddingService
	mode             domain.SearchMode
	embeddingTimeout time.Duration
	retrievalTimeout time.Duration
	maxRetries       int
	newBackOff       BackOffFactory
}

// RetrievalOption configures a RetrievalService.
type RetrievalOption func(*RetrievalService)

// WithLexicalSearch enables the lexical leg of hybrid and text-only retrieval.
func WithLexicalSearch(engine driven.SearchEngine) RetrievalOption {
	return func(s *RetrievalService) { s.search = engine }
}

// WithDefaultMode sets the mode used when a request does not name one.
func WithDefaultMode(mode domain.SearchMode) RetrievalOption {
	return func(s *RetrievalService) {
		if mode.IsValid() {
			s.mode = mode
		}
	}
}

// WithRetrievalTimeouts bounds query embedding and store search separately.
// Zero leaves a bound off.
func WithRetrievalTimeouts(embedding, retrieval time.Duration) RetrievalOption {
	return func(s *RetrievalService) {
		s.embeddingTimeout = embedding
		s.retrievalTimeout = retrieval
	}
}

// WithRetrievalRetries sets how often a transient query embedding failure
// is retried within the embedding timeout.
func WithRetrievalRetries(n int) RetrievalOption {
	return func(s *RetrievalService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetrievalBackOff replaces the query embedding backoff policy.
func WithRetrievalBackOff(factory BackOffFactory) RetrievalOption {
	return func(s *RetrievalService) { s.newBackOff = factory }
}

// NewRetrievalService creates a retrieval service. The embedder must be the
// one the index was built with; Retrieve rejects any other.
func NewRetrievalService(
	vectors driven.VectorStore,
	embedder driven.EmbeddingService,
	opts ...RetrievalOption,
) *RetrievalService {
	s := &RetrievalService{
		vectors:    vectors,
		embedder:   embedder,
		mode:       domain.SearchModeHybrid,
		maxRetries: 2,
		newBackOff: DefaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve returns at most opts.K chunks by descending score. Equal scores
// keep insertion order.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts domain.RetrieveOptions,
) (*domain.RetrievalResult, error) {
	logger.Section("Retrieval")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewUsageError("retrieve: query is empty")
	}
	if opts.K <= 0 {
		return nil, domain.NewUsageError("retrieve: k must be positive, got %d", opts.K)
	}
	if err := opts.Filter.Validate(); err != nil {
		return nil, &domain.RetrievalError{Op: "validate filter", Err: err}
	}

	mode, err := s.effectiveMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	logger.Debug("Query: %q, k=%d, mode=%s, filter=%s", query, opts.K, mode, opts.Filter)

	result := &domain.RetrievalResult{Query: query, Mode: mode}

	// An empty filter matches nothing. No fallback to unfiltered search.
	if opts.Filter != nil && len(opts.Filter.Predicates) == 0 {
		logger.Debug("Empty filter, returning no results")
		return result, nil
	}

	var embedding []float32
	if mode.RequiresEmbedding() {
		var space domain.EmbeddingSpace
		if space, err = s.storedSpace(ctx); err != nil {
			return nil, err
		}
		embedding, err = s.embedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		if space.Dimensions > 0 && len(embedding) != space.Dimensions {
			return nil, domain.NewUsageError(
				"retrieve: query embedding has %d dimensions but the index holds %d; re-index with this embedder",
				len(embedding), space.Dimensions)
		}
	}

	searchCtx := ctx
	if s.retrievalTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.retrievalTimeout)
		defer cancel()
	}

	// Ask each leg for more than k so post-filtering and fusion have room.
	limit := opts.K * 2

	var ranked []candidate
	switch mode {
	case domain.SearchModeVector:
		ranked, err = s.vectorSearch(searchCtx, embedding, limit, opts.Filter)
	case domain.SearchModeTextOnly:
		ranked, err = s.lexicalSearch(searchCtx, query, limit, opts.Filter)
	default:
		ranked, result.Degraded, err = s.hybridSearch(searchCtx, query, embedding, limit, opts.Filter)
	}
	if err != nil {
		return nil, err
	}

	items, err := s.hydrate(searchCtx, ranked, opts.Filter)
	if err != nil {
		return nil, err
	}
	rank(items)
	if len(items) > opts.K {
		items = items[:opts.K]
	}
	result.Items = items

	logger.Info("Retrieved %d chunks (mode=%s, degraded=%t)", len(items), mode, result.Degraded)
	return result, nil
}

// effectiveMode resolves the requested mode against the configured services.
// Missing configuration is a usage error; hybrid without a lexical index
// runs as vector search.
func (s *RetrievalService) effectiveMode(requested domain.SearchMode) (domain.SearchMode, error) {
	mode := requested
	if mode == "" {
		mode = s.mode
	}
	if !mode.IsValid() {
		return "", domain.NewUsageError("retrieve: unknown search mode %q", mode)
	}
	if s.vectors == nil {
		return "", domain.NewUsageError("retrieve: %v", domain.ErrVectorStoreUnavailable)
	}
	if mode.RequiresEmbedding() && s.embedder == nil {
		return "", domain.NewUsageError("retrieve: %s search needs an embedding provider: %v",
			mode, domain.ErrEmbeddingUnavailable)
	}
	if mode == domain.SearchModeTextOnly && s.search == nil {
		return "", domain.NewUsageError("retrieve: text_only search needs a lexical index: %v",
			domain.ErrSearchUnavailable)
	}
	if mode == domain.SearchModeHybrid && s.search == nil {
		logger.Debug("No lexical index, hybrid runs as vector search")
		return domain.SearchModeVector, nil
	}
	return mode, nil
}

// storedSpace returns the embedding space of the index and rejects an
// embedder from another one. An index with no recorded space passes.
func (s *RetrievalService) storedSpace(ctx context.Context) (domain.EmbeddingSpace, error) {
	stored, ok, err := s.vectors.EmbeddingSpace(ctx)
	if err != nil {
		return domain.EmbeddingSpace{}, &domain.RetrievalError{Op: "read embedding space", Err: err}
	}
	if !ok {
		return domain.EmbeddingSpace{}, nil
	}
	current := domain.EmbeddingSpace{Model: s.embedder.ModelName(), Dimensions: s.embedder.Dimensions()}
	if !stored.Compatible(current) {
		return stored, domain.NewUsageError(
			"retrieve: index was built with %s but the embedder is %s; re-index or switch the embedder back",
			stored, current)
	}
	return stored, nil
}

// embedQuery embeds query, retrying transient failures until the
// embedding timeout runs out.
func (s *RetrievalService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embeddingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.embeddingTimeout)
		defer cancel()
	}

	embedding, err := retryTransient(ctx, s.newBackOff, s.maxRetries, "embed query", func() ([]float32, error) {
		return s.embedder.Embed(ctx, query)
	})
	if err != nil {
		var embedErr *domain.EmbeddingError
		if errors.As(err, &embedErr) {
			return nil, err
		}
		return nil, &domain.EmbeddingError{Op: "embed query", Err: err}
	}
	logger.Debug("Query embedding: %d dimensions", len(embedding))
	return embedding, nil
}

func (s *RetrievalService) vectorSearch(
	ctx context.Context, embedding []float32, limit int, filter *domain.Filter,
) ([]candidate, error) {
	hits, err := s.vectors.Search(ctx, embedding, limit, filter)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "vector search", Err: err}
	}
	logger.Debug("Vector search: %d hits", len(hits))

	out := make([]candidate, len(hits))
	for i, h := range hits {
		out[i] = candidate{chunkID: h.ChunkID, score: h.Similarity}
	}
	return out, nil
}

func (s *RetrievalService) lexicalSearch(
	ctx context.Context, query string, limit int, filter *domain.Filter,
) ([]candidate, error) {
	hits, err := s.search.Search(ctx, query, limit, filter)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "lexical search", Err: err}
	}
	logger.Debug("Lexical search: %d hits", len(hits))

	out := make([]candidate, len(hits))
	for i, h := range hits {
		out[i] = candidate{chunkID: h.ChunkID, score: h.Score}
	}
	return out, nil
}

// hybridSearch runs both legs in parallel and fuses them. If one leg fails
// the other's ranking is used and the result is marked degraded.
func (s *RetrievalService) hybridSearch(
	ctx context.Context, query string, embedding []float32, limit int, filter *domain.Filter,
) ([]candidate, bool, error) {
	var lexical, vector []candidate
	var lexicalErr, vectorErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lexical, lexicalErr = s.lexicalSearch(ctx, query, limit, filter)
	}()
	go func() {
		defer wg.Done()
		vector, vectorErr = s.vectorSearch(ctx, embedding, limit, filter)
	}()
	wg.Wait()

	switch {
	case lexicalErr != nil && vectorErr != nil:
		return nil, false, &domain.RetrievalError{Op: "hybrid search", Err: errors.Join(vectorErr, lexicalErr)}
	case lexicalErr != nil:
		logger.Warn("Hybrid search: lexical leg failed, using vector results only: %v", lexicalErr)
		return vector, true, nil
	case vectorErr != nil:
		logger.Warn("Hybrid search: vector leg failed, using lexical results only: %v", vectorErr)
		return lexical, true, nil
	}

	logger.Debug("Hybrid search: fusing %d vector + %d lexical hits", len(vector), len(lexical))
	return reciprocalRankFusion(rrfK, vector, lexical), false, nil
}

// reciprocalRankFusion sums 1/(k+rank) over the lists. The output keeps
// first-seen order, so callers that sort stably break ties by list position.
func reciprocalRankFusion(k int, lists ...[]candidate) []candidate {
	scores := make(map[string]float64)
	var order []string
	for _, list := range lists {
		for rank, c := range list {
			if _, seen := scores[c.chunkID]; !seen {
				order = append(order, c.chunkID)
			}
			scores[c.chunkID] += 1.0 / float64(k+rank+1)
		}
	}

	out := make([]candidate, len(order))
	for i, id := range order {
		out[i] = candidate{chunkID: id, score: scores[id]}
	}
	return out
}

// hydrate loads the chunk records and drops any the filter rejects. IDs
// missing from the store are skipped.
func (s *RetrievalService) hydrate(
	ctx context.Context, ranked []candidate, filter *domain.Filter,
) ([]domain.ScoredChunk, error) {
	if len(ranked) == 0 {
		return nil, nil
	}

	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.chunkID
	}
	records, err := s.vectors.Get(ctx, ids)
	if err != nil {
		return nil, &domain.RetrievalError{Op: "load chunks", Err: err}
	}

	items := make([]domain.ScoredChunk, 0, len(ranked))
	for _, c := range ranked {
		rec, ok := records[c.chunkID]
		if !ok {
			logger.Debug("Chunk %s not in store, skipping", c.chunkID)
			continue
		}
		if !filter.Matches(rec.Chunk) {
			continue
		}
		items = append(items, domain.ScoredChunk{Chunk: rec.Chunk, Score: c.score, Seq: rec.Seq})
	}
	return items, nil
}

// rank orders items by descending score, then ascending insertion order.
func rank(items []domain.ScoredChunk) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Seq < items[j].Seq
	})
}
