package driving

import (
	"context"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// AnswerStream delivers one answer incrementally.
type AnswerStream interface {
	// Next returns the next fragment. It returns io.EOF once the answer is
	// complete, and the failure (wrapping domain.ErrAnswerUnavailable)
	// if the turn failed.
	Next() (string, error)

	// State returns the current generator state.
	State() domain.AnswerState

	// Answer returns the answer accumulated so far.
	Answer() domain.Answer

	// Close abandons the stream. Further Next calls fail.
	Close() error
}

// AskOptions tunes one question.
type AskOptions struct {
	// History holds earlier turns of the conversation, oldest first.
	History []domain.Turn

	// K overrides the number of chunks retrieved. Zero uses the default.
	K int

	// Filter restricts retrieval. Nil means unfiltered.
	Filter *domain.Filter

	// Mode overrides the search mode. Empty uses the default.
	Mode domain.SearchMode
}

// AnswerService answers a single question against the index.
type AnswerService interface {
	// Ask validates the question, retrieves context and starts generation.
	// Usage errors are returned directly; later failures surface through
	// the stream.
	Ask(ctx context.Context, question string, opts AskOptions) (AnswerStream, error)
}

// Session is one conversation. Messages are processed one at a time.
type Session interface {
	// ID identifies the session.
	ID() string

	// Send starts a turn. It fails with domain.ErrTurnInProgress if the
	// previous turn's stream has not finished.
	Send(ctx context.Context, text string) (AnswerStream, error)

	// History returns the completed turns.
	History() []domain.Turn

	// Reset clears the history. It fails while a turn is in progress.
	Reset() error

	// Close ends the session.
	Close() error
}

// SessionService creates and tracks sessions.
type SessionService interface {
	// Start creates a new session with empty history.
	Start(ctx context.Context) (Session, error)

	// Get returns a live session.
	Get(id string) (Session, error)

	// End closes and forgets a session.
	End(id string) error
}
