package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockEmbeddingService returns a fixed-size vector derived from the text.
// Texts listed in failures fail with the mapped error; transient failures
// are consumed one per call.
type mockEmbeddingService struct {
	mu        sync.Mutex
	batchErr  error
	failures  map[string]error
	transient map[string]int
	calls     int
	batches   int
}

func (m *mockEmbeddingService) vector(text string) []float32 {
	v := make([]float32, 4)
	for i, r := range strings.ToLower(text) {
		v[(int(r)+i)%4] += 1
	}
	return v
}

func (m *mockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if n := m.transient[text]; n > 0 {
		m.transient[text] = n - 1
		return nil, &domain.EmbeddingError{Op: "embed", Transient: true, Err: errors.New("rate limited")}
	}
	if err, ok := m.failures[text]; ok {
		return nil, err
	}
	return m.vector(text), nil
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches++
	batchErr := m.batchErr
	m.mu.Unlock()

	if batchErr != nil {
		return nil, batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int              { return 4 }
func (m *mockEmbeddingService) ModelName() string            { return "mock" }
func (m *mockEmbeddingService) Ping(_ context.Context) error { return nil }
func (m *mockEmbeddingService) Close() error                 { return nil }

// mockTokenStream replays tokens, then ends with err or io.EOF.
type mockTokenStream struct {
	mu     sync.Mutex
	ctx    context.Context
	tokens []string
	err    error
	block  bool
	pos    int
	closed bool
}

func (s *mockTokenStream) Next() (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.New("stream closed")
	}
	if s.pos < len(s.tokens) {
		tok := s.tokens[s.pos]
		s.pos++
		s.mu.Unlock()
		return tok, nil
	}
	block := s.block
	s.mu.Unlock()

	if block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *mockTokenStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// mockLLMService hands out one mockTokenStream per call and records the
// messages it was given.
type mockLLMService struct {
	mu       sync.Mutex
	tokens   []string
	err      error
	startErr error
	block    bool
	messages [][]driven.ChatMessage
}

func (m *mockLLMService) Chat(_ context.Context, _ []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	return strings.Join(m.tokens, ""), m.err
}

func (m *mockLLMService) ChatStream(
	ctx context.Context, messages []driven.ChatMessage, _ driven.ChatOptions,
) (driven.TokenStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, messages)
	if m.startErr != nil {
		return nil, m.startErr
	}
	return &mockTokenStream{ctx: ctx, tokens: m.tokens, err: m.err, block: m.block}, nil
}

func (m *mockLLMService) lastMessages() []driven.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

func (m *mockLLMService) ModelName() string            { return "mock" }
func (m *mockLLMService) Ping(_ context.Context) error { return nil }
func (m *mockLLMService) Close() error                 { return nil }

// mockPromptStore serves one template for every name.
type mockPromptStore struct {
	template string
	err      error
}

func (m *mockPromptStore) Load(_ string) (string, error) { return m.template, m.err }
func (m *mockPromptStore) Reload() error                 { return nil }

// mockRetrievalService returns a canned result.
type mockRetrievalService struct {
	result *domain.RetrievalResult
	err    error
	opts   domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context, _ string, opts domain.RetrieveOptions,
) (*domain.RetrievalResult, error) {
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockSearchEngine records indexed chunks and returns canned hits.
type mockSearchEngine struct {
	mu        sync.Mutex
	hits      []driven.SearchHit
	searchErr error
	indexErr  error
	indexed   map[string][]domain.Chunk
}

func (m *mockSearchEngine) ReplaceDocument(_ context.Context, document string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexErr != nil {
		return m.indexErr
	}
	if m.indexed == nil {
		m.indexed = make(map[string][]domain.Chunk)
	}
	m.indexed[document] = chunks
	return nil
}

func (m *mockSearchEngine) Search(_ context.Context, _ string, limit int, _ *domain.Filter) ([]driven.SearchHit, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if limit > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:limit], nil
}

func (m *mockSearchEngine) Count(_ context.Context) (int, error) { return len(m.hits), nil }
func (m *mockSearchEngine) Close() error                         { return nil }

// failingVectorStore wraps a store and fails selected operations.
type failingVectorStore struct {
	driven.VectorStore
	replaceErr error
	searchErr  error
}

func (f *failingVectorStore) ReplaceDocument(ctx context.Context, document string, records []domain.IndexedRecord) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	return f.VectorStore.ReplaceDocument(ctx, document, records)
}

func (f *failingVectorStore) Search(
	ctx context.Context, query []float32, k int, filter *domain.Filter,
) ([]driven.VectorHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.VectorStore.Search(ctx, query, k, filter)
}

// chunk builds a chunk of source at position.
func chunk(source string, position int, content string) domain.Chunk {
	return domain.Chunk{
		ID:       source + "#" + string(rune('0'+position)),
		Content:  content,
		Source:   source,
		DocType:  domain.DefaultDocType,
		Position: position,
	}
}
