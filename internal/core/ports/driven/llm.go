package driven

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMService provides language model operations.
type LLMService interface {
	// Chat conducts a multi-turn conversation and returns the full reply.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	// ChatStream submits the conversation and returns the reply as an
	// incremental token stream. The stream is finite and cannot be
	// restarted; regenerating needs a new call.
	ChatStream(ctx context.Context, messages []ChatMessage, opts ChatOptions) (TokenStream, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// TokenStream is a cancellable sequence of text fragments.
type TokenStream interface {
	// Next blocks until the next fragment is available. It returns io.EOF
	// once the model signals end of output, and any other error on failure.
	Next() (string, error)

	// Close stops the stream and releases the underlying connection.
	// It is safe to call more than once and after io.EOF.
	Close() error
}

// ChatMessage represents a message in a conversation.
type ChatMessage struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures chat behaviour.
type ChatOptions struct {
	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}
