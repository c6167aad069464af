// Package ollama provides an LLM service adapter using Ollama.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/docqa/internal/adapters/driven/httpapi"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultLLMModel   = "llama3.2"
	DefaultLLMTimeout = 120 * time.Second
)

// LLMConfig holds configuration for the Ollama LLM service.
type LLMConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the LLM model to use (default: llama3.2).
	Model string

	// Timeout bounds non-streaming requests (default: 120s).
	Timeout time.Duration
}

// LLMService provides LLM operations using Ollama.
type LLMService struct {
	api    *httpapi.Client
	stream *httpapi.Client
	model  string
}

// options holds generation parameters.
type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

// chatMessage is the Ollama chat message format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is one /api/chat response object. Streaming responses
// send one per line and set Done on the last.
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// NewLLMService creates a new Ollama LLM service.
func NewLLMService(cfg LLMConfig) *LLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}

	return &LLMService{
		api: &httpapi.Client{
			HTTP:     &http.Client{Timeout: cfg.Timeout},
			Provider: "ollama",
			BaseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		},
		stream: &httpapi.Client{
			HTTP:     &http.Client{},
			Provider: "ollama",
			BaseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		},
		model: cfg.Model,
	}
}

// Chat conducts a multi-turn conversation and returns the full reply.
func (s *LLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	var resp chatResponse
	if err := s.api.PostJSON(ctx, "/api/chat", s.request(messages, opts, false), &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

// ChatStream streams the reply as newline-delimited JSON.
func (s *LLMService) ChatStream(
	ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions,
) (driven.TokenStream, error) {
	resp, err := s.stream.Post(ctx, "/api/chat", s.request(messages, opts, true))
	if err != nil {
		return nil, err
	}
	return httpapi.NewTokenStream("ollama", resp.Body, httpapi.FramingNDJSON, decodeLine), nil
}

func (s *LLMService) request(messages []driven.ChatMessage, opts driven.ChatOptions, stream bool) chatRequest {
	apiMessages := make([]chatMessage, len(messages))
	for i, msg := range messages {
		apiMessages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}
	return chatRequest{
		Model:    s.model,
		Messages: apiMessages,
		Stream:   stream,
		Options: &options{
			NumPredict:  opts.MaxTokens,
			Temperature: opts.Temperature,
		},
	}
}

func decodeLine(payload []byte) (string, bool, error) {
	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", false, fmt.Errorf("decode line: %w", err)
	}
	if resp.Error != "" {
		return "", false, errors.New(resp.Error)
	}
	return resp.Message.Content, resp.Done, nil
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
func (s *LLMService) Ping(ctx context.Context) error {
	return s.api.Get(ctx, "/api/tags")
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}
