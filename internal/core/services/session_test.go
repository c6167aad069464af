package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

func newTestSession(llm *mockLLMService) *Session {
	svc := newTestAnswerService(&mockRetrievalService{result: retrieved("# Terms\nNotice is 30 days.")}, llm, AnswerConfig{})
	return NewSession(svc, driving.AskOptions{})
}

func TestSession_CommitsCompletedTurns(t *testing.T) {
	llm := &mockLLMService{tokens: []string{"30 days."}}
	sess := newTestSession(llm)
	assert.NotEmpty(t, sess.ID())

	stream, err := sess.Send(context.Background(), "What is the notice period?")
	require.NoError(t, err)
	assert.Empty(t, sess.History(), "nothing is committed while streaming")

	_, err = drain(t, stream)
	require.NoError(t, err)

	history := sess.History()
	require.Len(t, history, 1)
	assert.Equal(t, "What is the notice period?", history[0].Question)
	assert.Equal(t, "30 days.", history[0].Answer)
	assert.False(t, history[0].At.IsZero())

	// The next turn carries the history to the model.
	stream, err = sess.Send(context.Background(), "And for the landlord?")
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	messages := llm.lastMessages()
	require.Len(t, messages, 4)
	assert.Equal(t, driven.ChatMessage{Role: driven.RoleUser, Content: "What is the notice period?"}, messages[1])
	assert.Equal(t, driven.ChatMessage{Role: driven.RoleAssistant, Content: "30 days."}, messages[2])
	assert.Equal(t, driven.ChatMessage{Role: driven.RoleUser, Content: "And for the landlord?"}, messages[3])
	assert.Len(t, sess.History(), 2)
}

func TestSession_FailedTurnIsNotCommitted(t *testing.T) {
	llm := &mockLLMService{tokens: []string{"half an"}, err: errors.New("connection reset")}
	sess := newTestSession(llm)

	stream, err := sess.Send(context.Background(), "q")
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.ErrorIs(t, err, domain.ErrAnswerUnavailable)

	assert.Empty(t, sess.History())

	// The slot is free again after a failure.
	llm.err = nil
	llm.tokens = []string{"fine"}
	stream, err = sess.Send(context.Background(), "q again")
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)
	assert.Len(t, sess.History(), 1)
}

func TestSession_RetrievalFailureFreesSlot(t *testing.T) {
	retriever := &mockRetrievalService{err: &domain.RetrievalError{Op: "vector search", Err: errors.New("locked")}}
	svc := newTestAnswerService(retriever, &mockLLMService{tokens: []string{"x"}}, AnswerConfig{})
	sess := NewSession(svc, driving.AskOptions{})

	stream, err := sess.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerFailed, stream.State())

	_, err = sess.Send(context.Background(), "q")
	require.NoError(t, err, "a failed turn must not hold the session")
	assert.Empty(t, sess.History())
}

func TestSession_TurnInProgress(t *testing.T) {
	sess := newTestSession(&mockLLMService{tokens: []string{"a", "b"}})

	stream, err := sess.Send(context.Background(), "first")
	require.NoError(t, err)

	_, err = sess.Send(context.Background(), "second")
	assert.ErrorIs(t, err, domain.ErrTurnInProgress)
	assert.ErrorIs(t, sess.Reset(), domain.ErrTurnInProgress)

	_, err = drain(t, stream)
	require.NoError(t, err)

	_, err = sess.Send(context.Background(), "second")
	assert.NoError(t, err)
}

func TestSession_UsageErrorFreesSlot(t *testing.T) {
	sess := newTestSession(&mockLLMService{tokens: []string{"a"}})

	_, err := sess.Send(context.Background(), "   ")
	require.ErrorIs(t, err, domain.ErrUsage)

	_, err = sess.Send(context.Background(), "real question")
	assert.NoError(t, err)
}

func TestSession_Reset(t *testing.T) {
	sess := newTestSession(&mockLLMService{tokens: []string{"answer"}})

	for _, q := range []string{"one", "two"} {
		stream, err := sess.Send(context.Background(), q)
		require.NoError(t, err)
		_, err = drain(t, stream)
		require.NoError(t, err)
	}
	require.Len(t, sess.History(), 2)

	require.NoError(t, sess.Reset())
	assert.Empty(t, sess.History())
}

func TestSession_CloseAbandonsTurn(t *testing.T) {
	sess := newTestSession(&mockLLMService{tokens: []string{"partial ", "answer"}})

	stream, err := sess.Send(context.Background(), "q")
	require.NoError(t, err)
	_, err = stream.Next()
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	assert.Equal(t, domain.AnswerFailed, stream.State())
	assert.Empty(t, sess.History())

	_, err = sess.Send(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.ErrorIs(t, sess.Reset(), domain.ErrSessionClosed)

	// Closing twice is harmless.
	assert.NoError(t, sess.Close())
}

func TestSessionService(t *testing.T) {
	answers := newTestAnswerService(&mockRetrievalService{result: retrieved("x")}, &mockLLMService{tokens: []string{"y"}}, AnswerConfig{})
	svc := NewSessionService(answers, driving.AskOptions{})

	a, err := svc.Start(context.Background())
	require.NoError(t, err)
	b, err := svc.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, svc.Len())

	got, err := svc.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, svc.End(a.ID()))
	assert.Equal(t, 1, svc.Len())

	_, err = svc.Get(a.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.End(a.ID()), domain.ErrNotFound)

	_, err = a.Send(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestSessionService_NoAnswerService(t *testing.T) {
	svc := NewSessionService(nil, driving.AskOptions{})

	_, err := svc.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrUsage)
}
