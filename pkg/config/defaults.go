package config

const (
	defaultStorageDriver = "sqlite"

	defaultAPIListen       = ":8080"
	defaultClientAPITarget = "http://localhost:8080"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "quorra_chunks"

	defaultProvider            = "ollama"
	defaultProviderTarget      = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultGenerationModel   = "llama3.2"
	defaultGenerationRetries = 3
	defaultGenerationTimeout = 30

	defaultTotalBudget  = 3000
	defaultChunkFloor   = 1
	defaultTopK         = 3
	defaultHistoryLimit = 20
	defaultSystemPrompt = "You are a helpful assistant. Answer using the provided context; if the context does not cover the question, say so."

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "quorra.answers"

	defaultMaxConcurrent = 8
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultProvider,
			Target:     defaultProviderTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Generation: GenerationConfig{
			Provider:       defaultProvider,
			Target:         defaultProviderTarget,
			Model:          defaultGenerationModel,
			MaxAttempts:    defaultGenerationRetries,
			TimeoutSeconds: defaultGenerationTimeout,
		},
		Context: ContextConfig{
			TotalBudget:  defaultTotalBudget,
			ChunkFloor:   defaultChunkFloor,
			TopK:         defaultTopK,
			HistoryLimit: defaultHistoryLimit,
			SystemPrompt: defaultSystemPrompt,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Pipeline: PipelineConfig{
			MaxConcurrent: defaultMaxConcurrent,
			DegradedMode:  true,
		},
	}
}
