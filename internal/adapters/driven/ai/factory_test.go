package ai

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name      string
		settings  *domain.EmbeddingSettings
		wantUsage bool
		wantModel string
		wantDims  int
	}{
		{
			name:      "nil settings is a usage error",
			settings:  nil,
			wantUsage: true,
		},
		{
			name:      "missing provider is a usage error",
			settings:  &domain.EmbeddingSettings{},
			wantUsage: true,
		},
		{
			name:      "ollama provider",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "all-minilm"},
			wantModel: "all-minilm",
			wantDims:  384,
		},
		{
			name:      "ollama unknown model falls back to default dimensions",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "custom"},
			wantModel: "custom",
			wantDims:  768,
		},
		{
			name:      "openai provider defaults to ada",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI, APIKey: "k"},
			wantModel: "text-embedding-ada-002",
			wantDims:  1536,
		},
		{
			name:      "openai without key is a usage error",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI},
			wantUsage: true,
		},
		{
			name:      "hash provider honours dimensions",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderHash, Dimensions: 64},
			wantModel: "hash-64",
			wantDims:  64,
		},
		{
			name:      "anthropic has no embeddings",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderAnthropic, APIKey: "k"},
			wantUsage: true,
		},
		{
			name:      "unknown provider",
			settings:  &domain.EmbeddingSettings{Provider: "unknown"},
			wantUsage: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantUsage {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrUsage)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
			assert.Equal(t, tt.wantDims, svc.Dimensions())
		})
	}
}

func TestCreateLLMService(t *testing.T) {
	tests := []struct {
		name      string
		settings  *domain.LLMSettings
		wantUsage bool
		wantModel string
	}{
		{name: "nil settings", settings: nil, wantUsage: true},
		{name: "missing provider", settings: &domain.LLMSettings{}, wantUsage: true},
		{
			name:      "ollama",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderOllama},
			wantModel: "llama3.2",
		},
		{
			name:      "openai",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderOpenAI, APIKey: "k", Model: "gpt-4o"},
			wantModel: "gpt-4o",
		},
		{
			name:      "anthropic",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderAnthropic, APIKey: "k"},
			wantModel: "claude-3-5-sonnet-latest",
		},
		{
			name:      "anthropic without key",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderAnthropic},
			wantUsage: true,
		},
		{
			name:      "hash cannot generate",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderHash},
			wantUsage: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateLLMService(tt.settings)
			if tt.wantUsage {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrUsage)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
		})
	}
}

func TestValidateLLMConfig(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer up.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	assert.NoError(t, ValidateLLMConfig(&domain.LLMSettings{Provider: domain.AIProviderOllama, BaseURL: up.URL}))

	err := ValidateLLMConfig(&domain.LLMSettings{Provider: domain.AIProviderOllama, BaseURL: down.URL})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestValidateEmbeddingConfig_Hash(t *testing.T) {
	assert.NoError(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{Provider: domain.AIProviderHash}))
	assert.ErrorIs(t, ValidateEmbeddingConfig(&domain.EmbeddingSettings{}), domain.ErrUsage)
}
