package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/logger"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetVerbose(false)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return &buf
}

func TestEmbeddingService_ConfiguredProviderFailureWarns(t *testing.T) {
	buf := captureLog(t)
	settings := &domain.AppSettings{Embedding: domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI}}

	svc := embeddingService(settings, &app{})

	assert.Nil(t, svc)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "embedding provider openai could not be created")
	assert.Contains(t, buf.String(), "embedding.api_key")
}

func TestLLMService_ConfiguredProviderFailureWarns(t *testing.T) {
	buf := captureLog(t)
	settings := &domain.AppSettings{LLM: domain.LLMSettings{Provider: domain.AIProviderAnthropic}}

	svc := llmService(settings, &app{})

	assert.Nil(t, svc)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "llm provider anthropic could not be created")
}

func TestAIServices_UnconfiguredStayQuiet(t *testing.T) {
	buf := captureLog(t)
	settings := &domain.AppSettings{}

	assert.Nil(t, embeddingService(settings, &app{}))
	assert.Nil(t, llmService(settings, &app{}))
	assert.Empty(t, buf.String())
}

func TestEmbeddingService_RegistersCloser(t *testing.T) {
	captureLog(t)
	a := &app{}
	settings := &domain.AppSettings{Embedding: domain.EmbeddingSettings{Provider: domain.AIProviderHash}}

	svc := embeddingService(settings, a)

	require.NotNil(t, svc)
	assert.Len(t, a.closers, 1)
}
