package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationState_AppendAndReset(t *testing.T) {
	s := NewConversationState("sess-1")
	assert.Equal(t, 0, s.Len())

	s.Append(Turn{Question: "q1", Answer: "a1"})
	s.Append(Turn{Question: "q2", Answer: "a2"})

	turns := s.Turns()
	assert.Len(t, turns, 2)
	assert.Equal(t, "q1", turns[0].Question)
	assert.False(t, turns[0].At.IsZero())

	// Turns returns a copy.
	turns[0].Answer = "changed"
	assert.Equal(t, "a1", s.Turns()[0].Answer)

	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestAnswerState_String(t *testing.T) {
	assert.Equal(t, "IDLE", AnswerIdle.String())
	assert.Equal(t, "PROMPTING", AnswerPrompting.String())
	assert.Equal(t, "STREAMING", AnswerStreaming.String())
	assert.Equal(t, "COMPLETE", AnswerComplete.String())
	assert.Equal(t, "FAILED", AnswerFailed.String())
	assert.Equal(t, "Unknown", AnswerState(42).String())
}

func TestAnswerState_Terminal(t *testing.T) {
	assert.False(t, AnswerIdle.Terminal())
	assert.False(t, AnswerStreaming.Terminal())
	assert.True(t, AnswerComplete.Terminal())
	assert.True(t, AnswerFailed.Terminal())
}

func TestAnswer_Unavailable(t *testing.T) {
	assert.True(t, Answer{State: AnswerFailed}.Unavailable())
	assert.False(t, Answer{State: AnswerComplete}.Unavailable())
	assert.False(t, Answer{State: AnswerComplete, Text: ""}.Unavailable())
}
