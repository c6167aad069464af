package api

import (
	"context"
	"io"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

type mockRetrievalService struct {
	result *domain.RetrievalResult
	err    error
	opts   domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context, query string, opts domain.RetrieveOptions,
) (*domain.RetrievalResult, error) {
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.RetrievalResult{Query: query, Mode: domain.SearchModeVector}, nil
	}
	return m.result, nil
}

type mockStream struct {
	tokens []string
	err    error
	answer domain.Answer
	pos    int
}

func (m *mockStream) Next() (string, error) {
	if m.pos < len(m.tokens) {
		m.pos++
		m.answer.Text += m.tokens[m.pos-1]
		return m.tokens[m.pos-1], nil
	}
	if m.err != nil {
		m.answer.State = domain.AnswerFailed
		return "", m.err
	}
	m.answer.State = domain.AnswerComplete
	return "", io.EOF
}

func (m *mockStream) State() domain.AnswerState { return m.answer.State }
func (m *mockStream) Answer() domain.Answer     { return m.answer }
func (m *mockStream) Close() error              { return nil }

type mockSession struct {
	id       string
	stream   *mockStream
	sendErr  error
	resetErr error
	history  []domain.Turn
	sent     []string
}

func (m *mockSession) ID() string { return m.id }

func (m *mockSession) Send(_ context.Context, text string) (driving.AnswerStream, error) {
	m.sent = append(m.sent, text)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return m.stream, nil
}

func (m *mockSession) History() []domain.Turn { return m.history }
func (m *mockSession) Reset() error           { return m.resetErr }
func (m *mockSession) Close() error           { return nil }

type mockSessionService struct {
	mu       sync.Mutex
	sessions map[string]*mockSession
	next     *mockSession
	startErr error
}

func (m *mockSessionService) Start(_ context.Context) (driving.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	if m.sessions == nil {
		m.sessions = make(map[string]*mockSession)
	}
	m.sessions[m.next.id] = m.next
	return m.next, nil
}

func (m *mockSessionService) Get(id string) (driving.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

func (m *mockSessionService) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}
