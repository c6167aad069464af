package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI API or any compatible endpoint (Azure OpenAI, vLLM).
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderHash is the built-in deterministic feature-hashing embedder.
	// It needs no network and is meant for offline use and smoke tests.
	AIProviderHash AIProvider = "hash"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderHash:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHash
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI-compatible (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderHash:
		return "Feature hashing (offline)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
// Index time and query time must use identical settings.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the vector size for the hash provider
	// and for models missing from EmbeddingDimensions.
	Dimensions int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// Temperature is the sampling temperature. Zero keeps answers extractive.
	Temperature float64

	// MaxTokens caps the answer length. Zero means provider default.
	MaxTokens int
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider == AIProviderHash {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// RetrievalSettings holds retrieval behaviour configuration.
type RetrievalSettings struct {
	// Mode is the search mode.
	Mode SearchMode

	// TopK is the number of chunks placed in the context.
	TopK int

	// MaxContextChars bounds the assembled context. Zero means unbounded.
	MaxContextChars int
}

// TimeoutSettings holds the independent per-call timeouts of a turn.
type TimeoutSettings struct {
	Embedding  time.Duration
	Retrieval  time.Duration
	Generation time.Duration
}

// BoundaryMarker is a structural marker and the metadata label it produces.
// Markers are ordered from highest precedence (rank 1) down.
type BoundaryMarker struct {
	Marker string
	Label  string
}

// DefaultBoundaryMarkers splits on level-1 and level-2 markdown headings.
func DefaultBoundaryMarkers() []BoundaryMarker {
	return []BoundaryMarker{
		{Marker: "#", Label: "Header 1"},
		{Marker: "##", Label: "Header 2"},
	}
}

// ChunkingSettings configures how documents are cut into chunks.
type ChunkingSettings struct {
	// Markers are the boundary markers, highest precedence first.
	Markers []BoundaryMarker

	// Pipeline is the post-processor chain applied to each document.
	Pipeline PipelineConfig
}

// IndexingSettings configures the indexer.
type IndexingSettings struct {
	// RatePerSecond limits embedding calls. Zero disables limiting.
	RatePerSecond float64

	// MaxRetries bounds retries of transient embedding failures.
	MaxRetries int
}

// StorageSettings configures persistence.
type StorageSettings struct {
	// DataDir holds the vector database and the lexical index.
	DataDir string

	// StagingDir holds converted markdown files awaiting indexing.
	StagingDir string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Retrieval RetrievalSettings
	Timeouts  TimeoutSettings
	Chunking  ChunkingSettings
	Indexing  IndexingSettings
	Storage   StorageSettings

	// Prompt is the name of the answer prompt template.
	Prompt string
}

// Prompt template names.
const (
	PromptAnswerQA      = "answer_qa"
	PromptAnswerCopilot = "answer_copilot"
)

// DefaultAppSettings returns settings with sensible defaults.
// AI providers are left unconfigured and must be set explicitly.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Retrieval: RetrievalSettings{
			Mode: SearchModeHybrid,
			TopK: DefaultTopK,
		},
		LLM: LLMSettings{
			Temperature: 0,
		},
		Timeouts: TimeoutSettings{
			Embedding:  30 * time.Second,
			Retrieval:  15 * time.Second,
			Generation: 120 * time.Second,
		},
		Chunking: ChunkingSettings{
			Markers:  DefaultBoundaryMarkers(),
			Pipeline: DefaultPipelineConfig(),
		},
		Indexing: IndexingSettings{
			RatePerSecond: 0,
			MaxRetries:    3,
		},
		Prompt: PromptAnswerQA,
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderHash,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-ada-002",
		AIProviderHash:   "hash-256",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Built-in
		"hash-256": 256,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// DefaultPipelineConfig splits on headers only. The size splitter is
// available but off by default because it breaks sections apart.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"headers"},
		ProcessorConfigs: map[string]map[string]any{
			"size": {
				"chunk_size": 4000,
				"overlap":    0,
			},
		},
	}
}
