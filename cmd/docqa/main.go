// Command docqa answers questions from a folder of documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/docqa/internal/adapters/driven/ai"
	"github.com/custodia-labs/docqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docqa/internal/adapters/driven/search"
	"github.com/custodia-labs/docqa/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docqa/internal/adapters/driving/cli"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/core/services"
	"github.com/custodia-labs/docqa/internal/logger"
	"github.com/custodia-labs/docqa/internal/normalisers"
	"github.com/custodia-labs/docqa/internal/postprocessors"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := wire()
	if err != nil {
		logger.Error("startup failed: %v", err)
		return 1
	}
	defer app.close()

	cli.SetServices(app.services)
	if err := cli.Execute(ctx); err != nil {
		if errors.Is(err, domain.ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}

// app owns the resources the services are built on.
type app struct {
	services cli.Services
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("shutdown: %v", err)
		}
	}
}

// wire builds every service from the settings in ~/.docqa/config.toml.
// Missing AI configuration is not fatal here: the services that need a
// provider reject requests with a usage error naming the missing setting.
func wire() (*app, error) {
	a := &app{}

	configStore, err := file.NewConfigStore("")
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	dataDir, stagingDir, err := storageDirs(settings.Storage)
	if err != nil {
		return nil, err
	}

	staging, err := file.NewStagingStore(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("open staging folder: %w", err)
	}
	prompts, err := file.NewPromptStore("")
	if err != nil {
		return nil, fmt.Errorf("open prompts: %w", err)
	}

	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry, settings.Chunking.Markers)
	pipeline, err := postprocessors.BuildPipeline(registry, settings.Chunking.Pipeline)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	lexical := search.NewLazy(filepath.Join(dataDir, "lexical.bleve"))
	a.closers = append(a.closers, lexical.Close)

	embedder := embeddingService(settings, a)
	llm := llmService(settings, a)

	index := services.NewIndexService(pipeline, store, embedder,
		services.WithSearchEngine(lexical),
		services.WithStaging(staging),
		services.WithRateLimit(settings.Indexing.RatePerSecond),
		services.WithMaxRetries(settings.Indexing.MaxRetries),
	)

	retrieval := services.NewRetrievalService(store, embedder,
		services.WithLexicalSearch(lexical),
		services.WithDefaultMode(settings.Retrieval.Mode),
		services.WithRetrievalTimeouts(settings.Timeouts.Embedding, settings.Timeouts.Retrieval),
		services.WithRetrievalRetries(settings.Indexing.MaxRetries),
	)

	answers := services.NewAnswerService(retrieval, llm, prompts, services.AnswerConfig{
		PromptName:        settings.Prompt,
		TopK:              settings.Retrieval.TopK,
		MaxContextChars:   settings.Retrieval.MaxContextChars,
		GenerationTimeout: settings.Timeouts.Generation,
		Chat: driven.ChatOptions{
			MaxTokens:   settings.LLM.MaxTokens,
			Temperature: settings.LLM.Temperature,
		},
	})

	a.services = cli.Services{
		Settings:   settingsService,
		Ingest:     services.NewIngestService(normalisers.NewDefaultRegistry(), staging),
		Index:      index,
		Retrieval:  retrieval,
		Answers:    answers,
		Sessions:   services.NewSessionService(answers, driving.AskOptions{}),
		Staged:     staging,
		StagingDir: staging.Dir(),
	}
	return a, nil
}

// storageDirs resolves the data and staging folders, defaulting to
// ~/.docqa/data and ~/.docqa/staging.
func storageDirs(s domain.StorageSettings) (string, string, error) {
	dataDir, stagingDir := s.DataDir, s.StagingDir
	if dataDir != "" && stagingDir != "" {
		return dataDir, stagingDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get home directory: %w", err)
	}
	if dataDir == "" {
		dataDir = filepath.Join(home, ".docqa", "data")
	}
	if stagingDir == "" {
		stagingDir = filepath.Join(home, ".docqa", "staging")
	}
	return dataDir, stagingDir, nil
}

// embeddingService returns nil when no usable provider is configured.
func embeddingService(settings *domain.AppSettings, a *app) driven.EmbeddingService {
	svc, err := ai.CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		logProviderError("embedding", settings.Embedding.Provider, err)
		return nil
	}
	a.closers = append(a.closers, svc.Close)
	return svc
}

// llmService returns nil when no usable provider is configured.
func llmService(settings *domain.AppSettings, a *app) driven.LLMService {
	svc, err := ai.CreateLLMService(&settings.LLM)
	if err != nil {
		logProviderError("llm", settings.LLM.Provider, err)
		return nil
	}
	a.closers = append(a.closers, svc.Close)
	return svc
}

// logProviderError reports why an AI service was not built. An unset
// provider is normal until setup; a configured one that fails is not.
func logProviderError(kind string, provider domain.AIProvider, err error) {
	if provider == "" {
		logger.Debug("%s: %v", kind, err)
		return
	}
	logger.Warn("%s provider %s could not be created: %v", kind, provider, err)
}
