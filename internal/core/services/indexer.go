package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// IndexService embeds chunks and writes them to the vector store and,
// when configured, the lexical index.
type IndexService struct {
	pipeline   driven.PostProcessorPipeline
	vectors    driven.VectorStore
	embedder   driven.EmbeddingService
	search     driven.SearchEngine
	staging    driven.StagingStore
	limiter    *rate.Limiter
	maxRetries int
	newBackOff BackOffFactory
}

// IndexOption configures an IndexService.
type IndexOption func(*IndexService)

// WithSearchEngine also writes chunks to a lexical index.
func WithSearchEngine(engine driven.SearchEngine) IndexOption {
	return func(s *IndexService) { s.search = engine }
}

// WithStaging enables IndexStaged and IndexStagedDocument.
func WithStaging(store driven.StagingStore) IndexOption {
	return func(s *IndexService) { s.staging = store }
}

// WithRateLimit caps embedding calls per second. Zero or less disables the cap.
func WithRateLimit(perSecond float64) IndexOption {
	return func(s *IndexService) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithMaxRetries sets how often a transient embedding failure is retried.
func WithMaxRetries(n int) IndexOption {
	return func(s *IndexService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBackOff replaces the retry backoff policy.
func WithBackOff(factory BackOffFactory) IndexOption {
	return func(s *IndexService) { s.newBackOff = factory }
}

// NewIndexService creates an index service.
func NewIndexService(
	pipeline driven.PostProcessorPipeline,
	vectors driven.VectorStore,
	embedder driven.EmbeddingService,
	opts ...IndexOption,
) *IndexService {
	s := &IndexService{
		pipeline:   pipeline,
		vectors:    vectors,
		embedder:   embedder,
		maxRetries: 3,
		newBackOff: DefaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index embeds and stores chunks. The chunks of each document are taken
// as that document's complete content and replace whatever was stored for
// it. A store that already holds vectors from another embedding model is
// a usage error.
func (s *IndexService) Index(ctx context.Context, chunks []domain.Chunk) (domain.IndexReport, error) {
	if s.vectors == nil {
		return domain.IndexReport{}, domain.NewUsageError("index: %v", domain.ErrVectorStoreUnavailable)
	}
	if s.embedder == nil {
		return domain.IndexReport{}, domain.NewUsageError("index: %v", domain.ErrEmbeddingUnavailable)
	}

	space, err := s.embeddingSpace(ctx)
	if err != nil {
		return domain.IndexReport{}, err
	}

	var report domain.IndexReport
	for _, group := range groupByDocument(chunks) {
		var part domain.IndexReport
		part, err = s.indexDocument(ctx, group.document, group.chunks, &space)
		report.Add(part)
		if err != nil {
			break
		}
	}

	if report.Indexed > 0 {
		if serr := s.vectors.SetEmbeddingSpace(ctx, space); serr != nil {
			logger.Warn("record embedding space: %v", serr)
			report.Warnings = append(report.Warnings, fmt.Sprintf("record embedding space: %v", serr))
		}
	}
	if err != nil {
		return report, err
	}

	logger.Info("Indexed %d of %d chunks", report.Indexed, report.Attempted)
	return report, nil
}

// IndexDocument chunks doc and indexes it, replacing any earlier version.
// A document that yields no chunks clears its records.
func (s *IndexService) IndexDocument(ctx context.Context, doc *domain.Document) (domain.IndexReport, error) {
	if doc == nil {
		return domain.IndexReport{}, domain.NewUsageError("index document: document is nil")
	}
	if s.pipeline == nil {
		return domain.IndexReport{}, errors.New("index document: no chunking pipeline")
	}

	logger.Section("Indexing " + doc.SourceName())

	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return domain.IndexReport{}, fmt.Errorf("chunk %s: %w", doc.SourceName(), err)
	}
	logger.Debug("%s: %d chunks", doc.SourceName(), len(chunks))

	if len(chunks) == 0 {
		if s.vectors == nil {
			return domain.IndexReport{}, domain.NewUsageError("index: %v", domain.ErrVectorStoreUnavailable)
		}
		return s.indexDocument(ctx, doc.ID, nil, nil)
	}
	return s.Index(ctx, chunks)
}

// IndexStaged indexes every staged document. A document that cannot be
// loaded is reported as a warning and skipped.
func (s *IndexService) IndexStaged(ctx context.Context) (domain.IndexReport, error) {
	if s.staging == nil {
		return domain.IndexReport{}, errors.New("index staged: no staging store")
	}

	names, err := s.staging.List(ctx)
	if err != nil {
		return domain.IndexReport{}, fmt.Errorf("list staged documents: %w", err)
	}

	var report domain.IndexReport
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		part, err := s.IndexStagedDocument(ctx, name)
		report.Add(part)
		if err != nil {
			var usage *domain.UsageError
			if errors.As(err, &usage) || errors.Is(err, context.Canceled) {
				return report, err
			}
			logger.Warn("skip %s: %v", name, err)
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", name, err))
		}
	}
	return report, nil
}

// IndexStagedDocument indexes one staged document by name.
func (s *IndexService) IndexStagedDocument(ctx context.Context, name string) (domain.IndexReport, error) {
	if s.staging == nil {
		return domain.IndexReport{}, errors.New("index staged: no staging store")
	}
	doc, err := s.staging.Get(ctx, name)
	if err != nil {
		return domain.IndexReport{}, fmt.Errorf("load staged %s: %w", name, err)
	}
	return s.IndexDocument(ctx, doc)
}

// embeddingSpace resolves the space this run writes into. The embedder
// must match the space of any vectors already stored.
func (s *IndexService) embeddingSpace(ctx context.Context) (domain.EmbeddingSpace, error) {
	want := domain.EmbeddingSpace{Model: s.embedder.ModelName(), Dimensions: s.embedder.Dimensions()}

	stored, ok, err := s.vectors.EmbeddingSpace(ctx)
	if err != nil {
		return want, &domain.RetrievalError{Op: "read embedding space", Err: err}
	}
	if !ok {
		return want, nil
	}
	count, err := s.vectors.Count(ctx)
	if err != nil {
		return want, &domain.RetrievalError{Op: "count records", Err: err}
	}
	if count == 0 {
		return want, nil
	}
	if !stored.Compatible(want) {
		return want, domain.NewUsageError(
			"index: store holds vectors from %s but the embedder is %s; rebuild the index or switch the embedder back",
			stored, want)
	}
	if want.Dimensions == 0 {
		want.Dimensions = stored.Dimensions
	}
	return want, nil
}

// indexDocument embeds the chunks of one document and swaps them in.
// Chunks whose embedding fails, or whose vector does not fit space, are
// left out and reported. space may be nil when chunks is empty.
func (s *IndexService) indexDocument(
	ctx context.Context, document string, chunks []domain.Chunk, space *domain.EmbeddingSpace,
) (domain.IndexReport, error) {
	report := domain.IndexReport{Attempted: len(chunks)}

	vectors, failures, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return report, err
	}

	records := make([]domain.IndexedRecord, 0, len(chunks))
	stored := make([]domain.Chunk, 0, len(chunks))
	for i, c := range chunks {
		if failures[i] == nil {
			failures[i] = fitSpace(space, vectors[i])
		}
		if failures[i] != nil {
			report.Failed++
			report.Failures = append(report.Failures, domain.IndexFailure{
				ChunkID:  c.ID,
				Source:   c.Source,
				Position: c.Position,
				Err:      failures[i],
			})
			logger.Warn("chunk %s#%d not indexed: %v", document, c.Position, failures[i])
			continue
		}
		records = append(records, domain.IndexedRecord{Chunk: c, Embedding: vectors[i]})
		stored = append(stored, c)
	}

	if err := s.vectors.ReplaceDocument(ctx, document, records); err != nil {
		// Nothing of this document was written.
		werr := &domain.RetrievalError{Op: "write " + document, Err: err}
		for _, c := range stored {
			report.Failures = append(report.Failures, domain.IndexFailure{
				ChunkID: c.ID, Source: c.Source, Position: c.Position, Err: werr,
			})
		}
		report.Failed += len(stored)
		logger.Warn("write %s: %v", document, err)
		return report, nil
	}
	report.Indexed = len(records)

	if s.search != nil {
		if err := s.search.ReplaceDocument(ctx, document, stored); err != nil {
			logger.Warn("lexical index %s: %v", document, err)
			report.Warnings = append(report.Warnings, fmt.Sprintf("lexical index %s: %v", document, err))
		}
	}
	return report, nil
}

// fitSpace checks vec against the dimensions of space, adopting its length
// when the dimensions are not known yet.
func fitSpace(space *domain.EmbeddingSpace, vec []float32) error {
	if space == nil {
		return nil
	}
	if space.Dimensions == 0 {
		space.Dimensions = len(vec)
		return nil
	}
	if len(vec) != space.Dimensions {
		return &domain.EmbeddingError{
			Op:  "embed chunk",
			Err: fmt.Errorf("got %d dimensions, want %d", len(vec), space.Dimensions),
		}
	}
	return nil
}

// embedChunks embeds all chunks in one batch call and falls back to
// per-chunk calls when the batch fails, so one bad chunk only fails itself.
// The returned error is set only when ctx is done.
func (s *IndexService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, []error, error) {
	failures := make([]error, len(chunks))
	if len(chunks) == 0 {
		return nil, failures, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	batch, err := s.embedWithRetry(ctx, "embed batch", func() ([][]float32, error) {
		return s.embedder.EmbedBatch(ctx, texts)
	})
	if err == nil && len(batch) == len(chunks) {
		return batch, failures, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, nil, cerr
	}
	if err != nil {
		logger.Debug("batch embedding failed, embedding chunks one by one: %v", err)
	}

	vectors := make([][]float32, len(chunks))
	for i, text := range texts {
		vec, err := s.embedWithRetry(ctx, "embed chunk", func() ([][]float32, error) {
			v, err := s.embedder.Embed(ctx, text)
			return [][]float32{v}, err
		})
		if cerr := ctx.Err(); cerr != nil {
			return nil, nil, cerr
		}
		if err != nil {
			failures[i] = err
			continue
		}
		vectors[i] = vec[0]
	}
	return vectors, failures, nil
}

func (s *IndexService) embedWithRetry(
	ctx context.Context, name string, call func() ([][]float32, error),
) ([][]float32, error) {
	return retryTransient(ctx, s.newBackOff, s.maxRetries, name, func() ([][]float32, error) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return call()
	})
}

type documentGroup struct {
	document string
	chunks   []domain.Chunk
}

// groupByDocument splits chunks by originating document, keeping
// first-seen order. Chunks without a document are grouped by source.
func groupByDocument(chunks []domain.Chunk) []documentGroup {
	index := make(map[string]int)
	var groups []documentGroup
	for _, c := range chunks {
		key := c.Document
		if key == "" {
			key = c.Source
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, documentGroup{document: key})
		}
		groups[i].chunks = append(groups[i].chunks, c)
	}
	return groups
}
