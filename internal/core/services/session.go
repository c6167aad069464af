package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure the session types implement the interfaces.
var (
	_ driving.SessionService = (*SessionService)(nil)
	_ driving.Session        = (*Session)(nil)
)

// Session owns one conversation and processes its messages one at a time.
type Session struct {
	answers *AnswerService
	opts    driving.AskOptions

	mu      sync.Mutex
	state   *domain.ConversationState
	current *answerStream
	closed  bool
}

// NewSession creates a session with empty history. opts apply to every
// turn; its History field is ignored.
func NewSession(answers *AnswerService, opts driving.AskOptions) *Session {
	return &Session{
		answers: answers,
		opts:    opts,
		state:   domain.NewConversationState(uuid.NewString()),
	}
}

// ID identifies the session.
func (s *Session) ID() string {
	return s.state.ID
}

// Send starts a turn. The answer is appended to the history when its
// stream completes; a failed turn leaves the history untouched.
func (s *Session) Send(ctx context.Context, text string) (driving.AnswerStream, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	if s.current != nil {
		s.mu.Unlock()
		return nil, domain.ErrTurnInProgress
	}
	// Reserve the slot before any I/O so a concurrent Send is rejected.
	reserved := &answerStream{}
	s.current = reserved
	opts := s.opts
	opts.History = s.state.Turns()
	s.mu.Unlock()

	stream, err := s.answers.ask(ctx, text, opts, func(a domain.Answer) {
		s.finish(a)
	})
	if err != nil {
		s.mu.Lock()
		if s.current == reserved {
			s.current = nil
		}
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == reserved {
		s.current = stream
	}
	return stream, nil
}

// finish runs once per turn when its stream reaches a terminal state.
func (s *Session) finish(a domain.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.State == domain.AnswerComplete && !s.closed {
		s.state.Append(domain.Turn{Question: a.Question, Answer: a.Text})
		logger.Debug("session %s: turn %d committed", s.state.ID, s.state.Len())
	}
	s.current = nil
}

// History returns the completed turns, oldest first.
func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Turns()
}

// Reset clears the history.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.current != nil {
		return domain.ErrTurnInProgress
	}
	s.state.Reset()
	return nil
}

// Close ends the session and abandons any turn in progress.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	current := s.current
	s.mu.Unlock()

	if current != nil {
		return current.Close()
	}
	return nil
}

// SessionService tracks live sessions by ID.
type SessionService struct {
	answers *AnswerService
	opts    driving.AskOptions

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionService creates a session registry. opts apply to every turn
// of every session.
func NewSessionService(answers *AnswerService, opts driving.AskOptions) *SessionService {
	return &SessionService{
		answers:  answers,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Start creates a session.
func (s *SessionService) Start(_ context.Context) (driving.Session, error) {
	if s.answers == nil {
		return nil, domain.NewUsageError("start session: %v", domain.ErrLLMUnavailable)
	}
	sess := NewSession(s.answers, s.opts)

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	logger.Debug("session %s started", sess.ID())
	return sess, nil
}

// Get returns a live session.
func (s *SessionService) Get(id string) (driving.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

// End closes and forgets a session.
func (s *SessionService) End(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}
	return sess.Close()
}

// Len returns the number of live sessions.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
