// Package openai provides an LLM service adapter using the OpenAI chat
// completions API or any compatible endpoint.
package openai

import (
	"context"
	"encoding/json"
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
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultLLMModel   = "gpt-4o-mini"
	DefaultLLMTimeout = 120 * time.Second
)

// LLMConfig holds configuration for the OpenAI LLM service.
type LLMConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the LLM model to use (default: gpt-4o-mini).
	Model string

	// Timeout bounds non-streaming requests (default: 120s). Streams are
	// bounded by the caller's context instead.
	Timeout time.Duration
}

// LLMService provides LLM operations using OpenAI API.
type LLMService struct {
	api    *httpapi.Client
	stream *httpapi.Client
	model  string
}

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
	Stream      bool                `json:"stream,omitempty"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatCompletionChunk is one streamed SSE payload.
type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewLLMService creates a new OpenAI LLM service.
func NewLLMService(cfg LLMConfig) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}

	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	return &LLMService{
		api: &httpapi.Client{
			HTTP:     &http.Client{Timeout: cfg.Timeout},
			Provider: "openai",
			BaseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
			Headers:  headers,
		},
		stream: &httpapi.Client{
			HTTP:     &http.Client{},
			Provider: "openai",
			BaseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
			Headers:  headers,
		},
		model: cfg.Model,
	}, nil
}

// Chat conducts a multi-turn conversation and returns the full reply.
func (s *LLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	var resp chatCompletionResponse
	if err := s.api.PostJSON(ctx, "/chat/completions", s.request(messages, opts, false), &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream streams the reply as server-sent events.
func (s *LLMService) ChatStream(
	ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions,
) (driven.TokenStream, error) {
	resp, err := s.stream.Post(ctx, "/chat/completions", s.request(messages, opts, true))
	if err != nil {
		return nil, err
	}
	return httpapi.NewTokenStream("openai", resp.Body, httpapi.FramingSSE, decodeChunk), nil
}

func (s *LLMService) request(messages []driven.ChatMessage, opts driven.ChatOptions, stream bool) chatCompletionRequest {
	apiMessages := make([]chatCompletionMsg, len(messages))
	for i, msg := range messages {
		apiMessages[i] = chatCompletionMsg{Role: msg.Role, Content: msg.Content}
	}
	return chatCompletionRequest{
		Model:       s.model,
		Messages:    apiMessages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
}

func decodeChunk(payload []byte) (string, bool, error) {
	if string(payload) == "[DONE]" {
		return "", true, nil
	}

	var chunk chatCompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false, fmt.Errorf("decode chunk: %w", err)
	}
	if chunk.Error != nil {
		return "", false, fmt.Errorf("stream error: %s", chunk.Error.Message)
	}

	var b strings.Builder
	for _, choice := range chunk.Choices {
		b.WriteString(choice.Delta.Content)
	}
	return b.String(), false, nil
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by checking the /models endpoint.
// This is a lightweight check that validates the API key without running inference.
func (s *LLMService) Ping(ctx context.Context) error {
	return s.api.Get(ctx, "/models")
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}
