package cli

import (
	"context"
	"io"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// mockSettingsService implements driving.SettingsService.
type mockSettingsService struct {
	settings    domain.AppSettings
	validateErr error
	mode        domain.SearchMode
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) SetSearchMode(mode domain.SearchMode) error {
	m.mode = mode
	m.settings.Retrieval.Mode = mode
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.Embedding = domain.EmbeddingSettings{Provider: provider, Model: model, APIKey: apiKey}
	return nil
}

func (m *mockSettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.LLM = domain.LLMSettings{Provider: provider, Model: model, APIKey: apiKey}
	return nil
}

func (m *mockSettingsService) Validate() error                 { return m.validateErr }
func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }
func (m *mockSettingsService) ValidateEmbeddingConfig() error  { return nil }
func (m *mockSettingsService) ValidateLLMConfig() error        { return nil }

// mockIngestService implements driving.IngestService.
type mockIngestService struct {
	report *domain.IngestReport
	err    error
	opts   driving.IngestOptions
}

func (m *mockIngestService) Ingest(_ context.Context, opts driving.IngestOptions) (*domain.IngestReport, error) {
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

// mockIndexService implements driving.IndexService.
type mockIndexService struct {
	report  domain.IndexReport
	err     error
	indexed []string
}

func (m *mockIndexService) Index(_ context.Context, _ []domain.Chunk) (domain.IndexReport, error) {
	return m.report, m.err
}

func (m *mockIndexService) IndexDocument(_ context.Context, _ *domain.Document) (domain.IndexReport, error) {
	return m.report, m.err
}

func (m *mockIndexService) IndexStaged(_ context.Context) (domain.IndexReport, error) {
	m.indexed = append(m.indexed, "*")
	return m.report, m.err
}

func (m *mockIndexService) IndexStagedDocument(_ context.Context, name string) (domain.IndexReport, error) {
	m.indexed = append(m.indexed, name)
	return m.report, m.err
}

// mockRetrievalService implements driving.RetrievalService.
type mockRetrievalService struct {
	result *domain.RetrievalResult
	err    error
	query  string
	opts   domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context, query string, opts domain.RetrieveOptions,
) (*domain.RetrievalResult, error) {
	m.query = query
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockStream is an AnswerStream that yields fixed tokens, then either
// completes or fails with err.
type mockStream struct {
	tokens []string
	err    error
	answer domain.Answer
	pos    int
	closed bool
}

func (m *mockStream) Next() (string, error) {
	if m.pos < len(m.tokens) {
		tok := m.tokens[m.pos]
		m.pos++
		m.answer.Text += tok
		m.answer.State = domain.AnswerStreaming
		return tok, nil
	}
	if m.err != nil {
		m.answer.State = domain.AnswerFailed
		m.answer.Err = m.err
		return "", m.err
	}
	m.answer.State = domain.AnswerComplete
	return "", io.EOF
}

func (m *mockStream) State() domain.AnswerState { return m.answer.State }
func (m *mockStream) Answer() domain.Answer     { return m.answer }

func (m *mockStream) Close() error {
	m.closed = true
	return nil
}

// mockAnswerService implements driving.AnswerService.
type mockAnswerService struct {
	stream   *mockStream
	err      error
	question string
	opts     driving.AskOptions
}

func (m *mockAnswerService) Ask(_ context.Context, question string, opts driving.AskOptions) (driving.AnswerStream, error) {
	m.question = question
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

// mockSession implements driving.Session. Each Send gets a fresh stream
// from newStream.
type mockSession struct {
	newStream func(text string) (*mockStream, error)
	sent      []string
	resets    int
}

func (m *mockSession) ID() string { return "s-1" }

func (m *mockSession) Send(_ context.Context, text string) (driving.AnswerStream, error) {
	m.sent = append(m.sent, text)
	stream, err := m.newStream(text)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (m *mockSession) History() []domain.Turn { return nil }

func (m *mockSession) Reset() error {
	m.resets++
	return nil
}

func (m *mockSession) Close() error { return nil }

// mockSessionService implements driving.SessionService.
type mockSessionService struct {
	session *mockSession
	ended   []string
}

func (m *mockSessionService) Start(_ context.Context) (driving.Session, error) {
	return m.session, nil
}

func (m *mockSessionService) Get(id string) (driving.Session, error) {
	if id != m.session.ID() {
		return nil, domain.ErrNotFound
	}
	return m.session, nil
}

func (m *mockSessionService) End(id string) error {
	m.ended = append(m.ended, id)
	return nil
}

// mockStaged implements StagedDocuments.
type mockStaged struct {
	docs map[string]*domain.Document
}

func (m *mockStaged) List(_ context.Context) ([]string, error) {
	var names []string
	for name := range m.docs {
		names = append(names, name)
	}
	return names, nil
}

func (m *mockStaged) Get(_ context.Context, name string) (*domain.Document, error) {
	doc, ok := m.docs[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// setupTestServices installs empty mocks and returns a cleanup that
// restores the previous services and resets flags and command IO.
func setupTestServices() func() {
	prev := Services{
		Settings:   settingsService,
		Ingest:     ingestService,
		Index:      indexService,
		Retrieval:  retrievalService,
		Answers:    answerService,
		Sessions:   sessionService,
		Staged:     stagedDocuments,
		StagingDir: stagingDir,
	}

	SetServices(Services{
		Settings:  &mockSettingsService{settings: domain.DefaultAppSettings()},
		Ingest:    &mockIngestService{report: &domain.IngestReport{}},
		Index:     &mockIndexService{},
		Retrieval: &mockRetrievalService{result: &domain.RetrievalResult{Mode: domain.SearchModeHybrid}},
		Answers:   &mockAnswerService{stream: &mockStream{}},
		Sessions:  &mockSessionService{session: &mockSession{newStream: completeStream}},
		Staged:    &mockStaged{},
	})

	return func() {
		SetServices(prev)
		resetFlags()
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}
}

func completeStream(text string) (*mockStream, error) {
	return &mockStream{tokens: []string{"answer to ", text}}, nil
}

func resetFlags() {
	verbose = false
	logFormat = "text"
	ingestInclude = nil
	ingestDocType = ""
	indexWatch = false
	askK = 0
	askFilter = ""
	askMode = ""
	retrieveK = domain.DefaultTopK
	retrieveFilter = ""
	retrieveMode = ""
	retrieveJSON = false
	serveMCP = false
	servePort = 0
	serveHTTP = ""
	serveAPIKey = ""
}
