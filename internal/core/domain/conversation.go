package domain

import "time"

// Turn is one question/answer exchange.
type Turn struct {
	Question string
	Answer   string
	At       time.Time
}

// ConversationState holds the completed turns of one session.
// It is owned by a single session and is not safe for concurrent use;
// the session serialises access to it.
type ConversationState struct {
	// ID identifies the session that owns this state.
	ID string

	// StartedAt is when the session began.
	StartedAt time.Time

	turns []Turn
}

// NewConversationState creates an empty conversation.
func NewConversationState(id string) *ConversationState {
	return &ConversationState{ID: id, StartedAt: time.Now()}
}

// Append records a completed turn.
func (s *ConversationState) Append(t Turn) {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	s.turns = append(s.turns, t)
}

// Turns returns a copy of the turns, oldest first.
func (s *ConversationState) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of completed turns.
func (s *ConversationState) Len() int {
	return len(s.turns)
}

// Reset drops all turns.
func (s *ConversationState) Reset() {
	s.turns = nil
}
