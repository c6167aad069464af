package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyRetrievalMode     = "retrieval.mode"
	keyRetrievalTopK     = "retrieval.top_k"
	keyRetrievalMaxChars = "retrieval.max_context_chars"
	keyEmbedProvider     = "embedding.provider"
	keyEmbedModel        = "embedding.model"
	keyEmbedBaseURL      = "embedding.base_url"
	keyEmbedAPIKey       = "embedding.api_key"
	keyEmbedDims         = "embedding.dimensions"
	keyLLMProvider       = "llm.provider"
	keyLLMModel          = "llm.model"
	keyLLMBaseURL        = "llm.base_url"
	keyLLMAPIKey         = "llm.api_key"
	keyLLMTemperature    = "llm.temperature"
	keyLLMMaxTokens      = "llm.max_tokens"
	keyTimeoutEmbedding  = "timeouts.embedding"
	keyTimeoutRetrieval  = "timeouts.retrieval"
	keyTimeoutGeneration = "timeouts.generation"
	keyChunkMarkers      = "chunking.markers"
	keyPipeline          = "pipeline.processors"
	keyIndexRate         = "indexing.rate_per_second"
	keyIndexRetries      = "indexing.max_retries"
	keyDataDir           = "storage.data_dir"
	keyStagingDir        = "storage.staging_dir"
	keyPrompt            = "prompt.name"
)

// defaultOllamaURL is used when a local provider has no base URL.
const defaultOllamaURL = "http://localhost:11434"

// SettingsService reads and writes application settings through a ConfigStore.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get returns the configured settings with defaults filled in.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Retrieval: domain.RetrievalSettings{
			Mode:            s.getSearchMode(defaults.Retrieval.Mode),
			TopK:            s.getInt(keyRetrievalTopK, defaults.Retrieval.TopK),
			MaxContextChars: s.getInt(keyRetrievalMaxChars, defaults.Retrieval.MaxContextChars),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:   s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:      s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:    s.configStore.GetString(keyEmbedBaseURL),
			APIKey:     s.configStore.GetString(keyEmbedAPIKey),
			Dimensions: s.getInt(keyEmbedDims, defaults.Embedding.Dimensions),
		},
		LLM: domain.LLMSettings{
			Provider:    s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			Model:       s.getString(keyLLMModel, defaults.LLM.Model),
			BaseURL:     s.configStore.GetString(keyLLMBaseURL),
			APIKey:      s.configStore.GetString(keyLLMAPIKey),
			Temperature: s.getFloat(keyLLMTemperature, defaults.LLM.Temperature),
			MaxTokens:   s.getInt(keyLLMMaxTokens, defaults.LLM.MaxTokens),
		},
		Timeouts: domain.TimeoutSettings{
			Embedding:  s.getDuration(keyTimeoutEmbedding, defaults.Timeouts.Embedding),
			Retrieval:  s.getDuration(keyTimeoutRetrieval, defaults.Timeouts.Retrieval),
			Generation: s.getDuration(keyTimeoutGeneration, defaults.Timeouts.Generation),
		},
		Chunking: domain.ChunkingSettings{
			Markers:  s.getMarkers(defaults.Chunking.Markers),
			Pipeline: s.GetPipelineConfig(),
		},
		Indexing: domain.IndexingSettings{
			RatePerSecond: s.getFloat(keyIndexRate, defaults.Indexing.RatePerSecond),
			MaxRetries:    s.getInt(keyIndexRetries, defaults.Indexing.MaxRetries),
		},
		Storage: domain.StorageSettings{
			DataDir:    s.getString(keyDataDir, defaults.Storage.DataDir),
			StagingDir: s.getString(keyStagingDir, defaults.Storage.StagingDir),
		},
		Prompt: s.getString(keyPrompt, defaults.Prompt),
	}

	return settings, nil
}

type configValue struct {
	key   string
	value any
}

// Save persists settings. Empty API keys are not written so an existing
// key is kept.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []configValue{
		{keyRetrievalMode, settings.Retrieval.Mode.String()},
		{keyRetrievalTopK, settings.Retrieval.TopK},
		{keyRetrievalMaxChars, settings.Retrieval.MaxContextChars},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyLLMTemperature, settings.LLM.Temperature},
		{keyLLMMaxTokens, settings.LLM.MaxTokens},
		{keyTimeoutEmbedding, settings.Timeouts.Embedding.String()},
		{keyTimeoutRetrieval, settings.Timeouts.Retrieval.String()},
		{keyTimeoutGeneration, settings.Timeouts.Generation.String()},
		{keyChunkMarkers, formatMarkers(settings.Chunking.Markers)},
		{keyIndexRate, settings.Indexing.RatePerSecond},
		{keyIndexRetries, settings.Indexing.MaxRetries},
		{keyDataDir, settings.Storage.DataDir},
		{keyStagingDir, settings.Storage.StagingDir},
		{keyPrompt, settings.Prompt},
	}
	if settings.Embedding.APIKey != "" {
		values = append(values, configValue{keyEmbedAPIKey, settings.Embedding.APIKey})
	}
	if settings.LLM.APIKey != "" {
		values = append(values, configValue{keyLLMAPIKey, settings.LLM.APIKey})
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// SetSearchMode updates the retrieval mode.
func (s *SettingsService) SetSearchMode(mode domain.SearchMode) error {
	if !mode.IsValid() {
		return domain.NewUsageError("invalid search mode: %s", mode)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.Retrieval.Mode = mode
	return s.Save(settings)
}

// SetEmbeddingProvider configures the embedding provider. Changing it
// invalidates any existing index; the caller must re-index.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return domain.NewUsageError("invalid embedding provider: %s", provider)
	}
	if !containsProvider(domain.AllEmbeddingProviders(), provider) {
		return domain.NewUsageError("provider %s does not support embeddings", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return domain.NewUsageError("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	settings.Embedding.Model = modelOrDefault(model, domain.DefaultEmbeddingModels()[provider])
	settings.Embedding.BaseURL = baseURLFor(provider, settings.Embedding.BaseURL)
	settings.Embedding.APIKey = apiKey
	if d, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
		settings.Embedding.Dimensions = d
	}

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return domain.NewUsageError("invalid LLM provider: %s", provider)
	}
	if !containsProvider(domain.AllLLMProviders(), provider) {
		return domain.NewUsageError("provider %s does not support chat", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return domain.NewUsageError("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider
	settings.LLM.Model = modelOrDefault(model, domain.DefaultLLMModels()[provider])
	settings.LLM.BaseURL = baseURLFor(provider, settings.LLM.BaseURL)
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks that the settings can answer questions in the configured
// mode. Every failure is a *domain.UsageError.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if !settings.Retrieval.Mode.IsValid() {
		return domain.NewUsageError("invalid search mode: %s", settings.Retrieval.Mode)
	}
	if settings.Retrieval.TopK <= 0 {
		return domain.NewUsageError("retrieval.top_k must be positive, got %d", settings.Retrieval.TopK)
	}
	if settings.Retrieval.Mode.RequiresEmbedding() && !settings.Embedding.IsConfigured() {
		return domain.NewUsageError("search mode %q requires an embedding provider; run 'docqa config embedding'",
			settings.Retrieval.Mode.Description())
	}
	if !settings.LLM.IsConfigured() {
		return domain.NewUsageError("answering requires an LLM provider; run 'docqa config llm'")
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// GetPipelineConfig returns the chunking pipeline configuration.
func (s *SettingsService) GetPipelineConfig() domain.PipelineConfig {
	cfg := domain.DefaultPipelineConfig()

	if processors := s.configStore.GetStringSlice(keyPipeline); len(processors) > 0 {
		cfg.Processors = processors
	}

	for _, name := range cfg.Processors {
		loaded := s.loadProcessorConfig("pipeline." + name + ".")
		if len(loaded) == 0 {
			continue
		}
		if cfg.ProcessorConfigs == nil {
			cfg.ProcessorConfigs = make(map[string]map[string]any)
		}
		merged := cfg.ProcessorConfigs[name]
		if merged == nil {
			merged = make(map[string]any)
		}
		for k, v := range loaded {
			merged[k] = v
		}
		cfg.ProcessorConfigs[name] = merged
	}

	return cfg
}

func (s *SettingsService) loadProcessorConfig(prefix string) map[string]any {
	cfg := make(map[string]any)
	for _, key := range []string{"chunk_size", "overlap"} {
		if val, exists := s.configStore.Get(prefix + key); exists {
			cfg[key] = val
		}
	}
	return cfg
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getSearchMode(defaultVal domain.SearchMode) domain.SearchMode {
	mode := domain.SearchMode(s.configStore.GetString(keyRetrievalMode))
	if !mode.IsValid() {
		return defaultVal
	}
	return mode
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	provider := domain.AIProvider(s.configStore.GetString(key))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

// getMarkers reads markers stored as "marker=label" strings.
func (s *SettingsService) getMarkers(defaultVal []domain.BoundaryMarker) []domain.BoundaryMarker {
	raw := s.configStore.GetStringSlice(keyChunkMarkers)
	if len(raw) == 0 {
		return defaultVal
	}
	markers := make([]domain.BoundaryMarker, 0, len(raw))
	for _, entry := range raw {
		marker, label, ok := strings.Cut(entry, "=")
		marker = strings.TrimSpace(marker)
		if !ok || marker == "" {
			continue
		}
		markers = append(markers, domain.BoundaryMarker{Marker: marker, Label: strings.TrimSpace(label)})
	}
	if len(markers) == 0 {
		return defaultVal
	}
	return markers
}

func formatMarkers(markers []domain.BoundaryMarker) []string {
	out := make([]string, len(markers))
	for i, m := range markers {
		out[i] = m.Marker + "=" + m.Label
	}
	return out
}

func containsProvider(providers []domain.AIProvider, p domain.AIProvider) bool {
	for _, candidate := range providers {
		if candidate == p {
			return true
		}
	}
	return false
}

func modelOrDefault(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

// baseURLFor defaults Ollama to localhost. Hosted providers keep any
// configured endpoint (Azure OpenAI, vLLM); empty means the public API.
func baseURLFor(provider domain.AIProvider, current string) string {
	if provider == domain.AIProviderOllama {
		if current == "" {
			return defaultOllamaURL
		}
		return current
	}
	if provider == domain.AIProviderHash {
		return ""
	}
	return current
}
