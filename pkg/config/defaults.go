package config

// Storage driver names.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Events provider names. EventsNone builds a publisher that drops events.
const (
	EventsKafka = "kafka"
	EventsNone  = "none"
)

const (
	defaultStorageDriver = StorageSQLite
	defaultAPIListen     = ":8081"

	defaultClientAPITarget = "http://localhost:8081"

	defaultAnalysisProvider = "ollama"
	defaultAnalysisModel    = "gemma3"
	defaultAnalysisTarget   = "http://localhost:11434"
	defaultAnalysisTimeout  = "30s"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingTarget     = "http://localhost:11434"

	defaultSimilarityThreshold = 0.3
	defaultMaxConnections      = 5
	defaultLeaseTTL            = "5m"
	defaultBatchDelay          = "1s"
	defaultWorkers             = 2

	defaultEventsTopic = "weave.items"
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
		Analysis: AnalysisConfig{
			Provider: defaultAnalysisProvider,
			Model:    defaultAnalysisModel,
			Target:   defaultAnalysisTarget,
			Timeout:  defaultAnalysisTimeout,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Enrich: EnrichConfig{
			SimilarityThreshold: defaultSimilarityThreshold,
			MaxConnections:      defaultMaxConnections,
			LeaseTTL:            defaultLeaseTTL,
			BatchDelay:          defaultBatchDelay,
			Workers:             defaultWorkers,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
	}
}
