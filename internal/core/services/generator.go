package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// Ensure answerStream implements the interface.
var _ driving.AnswerStream = (*answerStream)(nil)

// AnswerConfig holds the generation settings of an AnswerService.
type AnswerConfig struct {
	// PromptName selects the template loaded from the prompt store.
	PromptName string

	// TopK is the number of chunks retrieved when a request leaves K unset.
	TopK int

	// MaxContextChars bounds the assembled context. Zero is unbounded.
	MaxContextChars int

	// GenerationTimeout bounds the whole model call, first token to last.
	GenerationTimeout time.Duration

	// Chat is passed to the model on every call.
	Chat driven.ChatOptions
}

// AnswerService answers questions: retrieve, assemble, prompt, stream.
type AnswerService struct {
	retriever driving.RetrievalService
	llm       driven.LLMService
	prompts   driven.PromptStore
	cfg       AnswerConfig
}

// NewAnswerService creates an answer service.
func NewAnswerService(
	retriever driving.RetrievalService,
	llm driven.LLMService,
	prompts driven.PromptStore,
	cfg AnswerConfig,
) *AnswerService {
	if cfg.TopK <= 0 {
		cfg.TopK = domain.DefaultTopK
	}
	if cfg.PromptName == "" {
		cfg.PromptName = domain.PromptAnswerQA
	}
	return &AnswerService{retriever: retriever, llm: llm, prompts: prompts, cfg: cfg}
}

// Ask starts answering question. Usage errors are returned directly and
// nothing is called. Retrieval, embedding and model failures leave the
// returned stream FAILED.
func (s *AnswerService) Ask(ctx context.Context, question string, opts driving.AskOptions) (driving.AnswerStream, error) {
	return s.ask(ctx, question, opts, nil)
}

// ask is Ask with a hook that runs exactly once when the stream reaches a
// terminal state.
func (s *AnswerService) ask(
	ctx context.Context, question string, opts driving.AskOptions, onDone func(domain.Answer),
) (*answerStream, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.NewUsageError("ask: question is empty")
	}
	if opts.K < 0 {
		return nil, domain.NewUsageError("ask: k must be positive, got %d", opts.K)
	}
	if s.retriever == nil {
		return nil, domain.NewUsageError("ask: no retriever configured")
	}
	if s.llm == nil {
		return nil, domain.NewUsageError("ask: %v", domain.ErrLLMUnavailable)
	}
	if s.prompts == nil {
		return nil, domain.NewUsageError("ask: no prompt store configured")
	}
	template, err := s.prompts.Load(s.cfg.PromptName)
	if err != nil {
		return nil, domain.NewUsageError("ask: load prompt %q: %v", s.cfg.PromptName, err)
	}

	k := opts.K
	if k == 0 {
		k = s.cfg.TopK
	}

	stream := &answerStream{
		answer: domain.Answer{Question: question, State: domain.AnswerIdle},
		onDone: onDone,
	}

	logger.Section("Answer")
	stream.setState(domain.AnswerPrompting)

	result, err := s.retriever.Retrieve(ctx, question, domain.RetrieveOptions{K: k, Filter: opts.Filter, Mode: opts.Mode})
	if err != nil {
		var usage *domain.UsageError
		if errors.As(err, &usage) {
			return nil, err
		}
		stream.fail(err)
		return stream, nil
	}

	contextText, used := AssembleContextBounded(result.Chunks(), s.cfg.MaxContextChars)
	stream.answer.Sources = result.Items[:used]
	stream.answer.Grounded = used > 0
	if !stream.answer.Grounded {
		logger.Warn("No context retrieved; answer is ungrounded")
	}

	messages := BindPrompt(template, contextText, question, opts.History)

	var genCtx context.Context
	var cancel context.CancelFunc
	if s.cfg.GenerationTimeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	} else {
		genCtx, cancel = context.WithCancel(ctx)
	}
	stream.cancel = cancel

	tokens, err := s.llm.ChatStream(genCtx, messages, s.cfg.Chat)
	if err != nil {
		stream.fail(&domain.GenerationError{Op: "start generation", Err: generationCause(genCtx, err)})
		return stream, nil
	}
	stream.tokens = tokens
	stream.ctx = genCtx
	stream.setState(domain.AnswerStreaming)
	return stream, nil
}

// BindPrompt builds the chat messages for one turn: the template with
// {context} and {question} substituted as the system message, the earlier
// turns, then the question.
func BindPrompt(template, contextText, question string, history []domain.Turn) []driven.ChatMessage {
	system := strings.NewReplacer(
		driven.PlaceholderContext, contextText,
		driven.PlaceholderQuestion, question,
	).Replace(template)

	messages := make([]driven.ChatMessage, 0, 2+2*len(history))
	messages = append(messages, driven.ChatMessage{Role: driven.RoleSystem, Content: system})
	for _, turn := range history {
		messages = append(messages,
			driven.ChatMessage{Role: driven.RoleUser, Content: turn.Question},
			driven.ChatMessage{Role: driven.RoleAssistant, Content: turn.Answer},
		)
	}
	return append(messages, driven.ChatMessage{Role: driven.RoleUser, Content: question})
}

// generationCause reports a deadline as such rather than as whatever the
// transport made of it.
func generationCause(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// answerStream is the generator state machine for one answer.
type answerStream struct {
	mu     sync.Mutex
	answer domain.Answer
	text   strings.Builder
	tokens driven.TokenStream
	ctx    context.Context
	cancel context.CancelFunc
	onDone func(domain.Answer)
	once   sync.Once
}

// Next returns the next fragment, io.EOF once complete, or the failure.
func (s *answerStream) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.answer.State {
	case domain.AnswerComplete:
		return "", io.EOF
	case domain.AnswerFailed:
		return "", s.answer.Err
	case domain.AnswerStreaming:
	default:
		return "", fmt.Errorf("answer stream in state %s", s.answer.State)
	}

	token, err := s.tokens.Next()

	// Close may have failed the stream while Next was blocked.
	if s.answer.State == domain.AnswerFailed {
		return "", s.answer.Err
	}

	switch {
	case errors.Is(err, io.EOF):
		s.complete()
		return "", io.EOF
	case err != nil:
		s.fail(&domain.GenerationError{
			Op:      "stream answer",
			Partial: s.text.String(),
			Err:     generationCause(s.ctx, err),
		})
		return "", s.answer.Err
	}

	s.text.WriteString(token)
	return token, nil
}

// State returns the current state.
func (s *answerStream) State() domain.AnswerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer.State
}

// Answer returns a snapshot of the answer so far.
func (s *answerStream) Answer() domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.answer
	a.Text = s.text.String()
	return a
}

// Close abandons the stream. A stream that has not completed becomes
// FAILED; a completed answer is left as it is.
func (s *answerStream) Close() error {
	// Unblock a pending Next before taking the lock.
	if s.cancel != nil {
		s.cancel()
	}
	if s.tokens != nil {
		_ = s.tokens.Close()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.answer.State.Terminal() {
		s.fail(&domain.GenerationError{Op: "stream answer", Partial: s.text.String(), Err: domain.ErrStreamClosed})
	}
	return nil
}

func (s *answerStream) setState(state domain.AnswerState) {
	logger.Debug("answer: %s -> %s", s.answer.State, state)
	s.answer.State = state
}

// complete and fail must be called with mu held, or before the stream is
// handed out.
func (s *answerStream) complete() {
	s.setState(domain.AnswerComplete)
	s.answer.Text = s.text.String()
	s.release()
}

func (s *answerStream) fail(cause error) {
	logger.Warn("answer failed: %v", cause)
	s.setState(domain.AnswerFailed)
	s.answer.Text = s.text.String()
	s.answer.Err = fmt.Errorf("%w: %w", domain.ErrAnswerUnavailable, cause)
	s.release()
}

func (s *answerStream) release() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.tokens != nil {
		_ = s.tokens.Close()
	}
	s.once.Do(func() {
		if s.onDone != nil {
			s.onDone(s.answer)
		}
	})
}
