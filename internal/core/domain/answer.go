package domain

// AnswerState is the lifecycle state of one generated answer.
type AnswerState int

// Answer states. A turn moves IDLE -> PROMPTING -> STREAMING and ends in
// COMPLETE or FAILED. FAILED is reachable from every non-terminal state.
const (
	AnswerIdle AnswerState = iota
	AnswerPrompting
	AnswerStreaming
	AnswerComplete
	AnswerFailed
)

// String returns the state name.
func (s AnswerState) String() string {
	switch s {
	case AnswerIdle:
		return "IDLE"
	case AnswerPrompting:
		return "PROMPTING"
	case AnswerStreaming:
		return "STREAMING"
	case AnswerComplete:
		return "COMPLETE"
	case AnswerFailed:
		return "FAILED"
	default:
		return unknownDescription
	}
}

// Terminal reports whether no further transition is possible.
func (s AnswerState) Terminal() bool {
	return s == AnswerComplete || s == AnswerFailed
}

// Answer is the outcome of one turn.
type Answer struct {
	// Question is what was asked.
	Question string

	// Text is the accumulated answer. When State is AnswerFailed it holds
	// whatever was streamed before the failure and is incomplete.
	Text string

	// State is the final (or current) state of the generator.
	State AnswerState

	// Sources are the chunks the answer was conditioned on, in rank order.
	Sources []ScoredChunk

	// Grounded is false when no context was retrieved. The model was told
	// to decline in that case, and callers should not present the text as
	// sourced.
	Grounded bool

	// Err is set when State is AnswerFailed.
	Err error
}

// Unavailable reports whether the turn failed. A failed turn never
// reads as an empty successful answer.
func (a Answer) Unavailable() bool {
	return a.State == AnswerFailed
}
