package mcp

import (
	"context"
	"fmt"
	"io"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	result *domain.RetrievalResult
	err    error
	query  string
	opts   domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	query string,
	opts domain.RetrieveOptions,
) (*domain.RetrievalResult, error) {
	m.query = query
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.RetrievalResult{Query: query, Mode: domain.SearchModeHybrid}, nil
	}
	return m.result, nil
}

// mockAnswerStream replays tokens, then ends with err or io.EOF.
type mockAnswerStream struct {
	tokens []string
	err    error
	answer domain.Answer
	pos    int
	closed bool
}

func (m *mockAnswerStream) Next() (string, error) {
	if m.pos < len(m.tokens) {
		m.pos++
		return m.tokens[m.pos-1], nil
	}
	if m.err != nil {
		m.answer.State = domain.AnswerFailed
		return "", m.err
	}
	m.answer.State = domain.AnswerComplete
	return "", io.EOF
}

func (m *mockAnswerStream) State() domain.AnswerState { return m.answer.State }
func (m *mockAnswerStream) Answer() domain.Answer     { return m.answer }

func (m *mockAnswerStream) Close() error {
	m.closed = true
	return nil
}

// mockAnswerService is a mock implementation of driving.AnswerService.
type mockAnswerService struct {
	stream *mockAnswerStream
	err    error
	opts   driving.AskOptions
}

func (m *mockAnswerService) Ask(_ context.Context, _ string, opts driving.AskOptions) (driving.AnswerStream, error) {
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

// mockStaged is an in-memory StagedDocuments.
type mockStaged struct {
	docs    map[string]*domain.Document
	names   []string
	listErr error
}

func (m *mockStaged) List(_ context.Context) ([]string, error) {
	return m.names, m.listErr
}

func (m *mockStaged) Get(_ context.Context, name string) (*domain.Document, error) {
	doc, ok := m.docs[name]
	if !ok {
		return nil, fmt.Errorf("staged document %s: %w", name, domain.ErrNotFound)
	}
	return doc, nil
}
