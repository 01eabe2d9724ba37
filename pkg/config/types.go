package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent weave configuration stored as config.toml
// in the .weave/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Analysis    AnalysisConfig    `toml:"analysis"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Enrich      EnrichConfig      `toml:"enrich"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig selects the item store.
type StorageConfig struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// server (e.g. weave pending --remote). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`

	// Owner is used when a command is run without --owner.
	Owner string `toml:"owner,omitempty"`
}

// AnalysisConfig holds the AI analysis provider settings.
type AnalysisConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	Target   string `toml:"target,omitempty"`

	// Timeout bounds every analysis call, as a Go duration string.
	Timeout string `toml:"timeout,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EnrichConfig tunes the enrichment pipeline and batch runs.
type EnrichConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold,omitempty"`
	MaxConnections      uint    `toml:"max_connections,omitempty"`
	LeaseTTL            string  `toml:"lease_ttl,omitempty"`
	BatchDelay          string  `toml:"batch_delay,omitempty"`
	Workers             uint    `toml:"workers,omitempty"`
}

// EventsConfig selects where item enriched events are published.
type EventsConfig struct {
	// Provider is "kafka", or empty to disable publishing.
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated list of host:port addresses.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case StorageSQLite, StoragePostgres, StorageMemory:
				c.Storage.Driver = v
				return nil
			default:
				return fmt.Errorf("invalid value for storage.driver: %q (available: sqlite, postgres, memory)", v)
			}
		},
	},
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"client.owner":      stringKey(func(c *Config) *string { return &c.Client.Owner }),

	"analysis.provider": stringKey(func(c *Config) *string { return &c.Analysis.Provider }),
	"analysis.model":    stringKey(func(c *Config) *string { return &c.Analysis.Model }),
	"analysis.target":   stringKey(func(c *Config) *string { return &c.Analysis.Target }),
	"analysis.timeout":  durationKey("analysis.timeout", func(c *Config) *string { return &c.Analysis.Timeout }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"vector_store.provider": stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":   stringKey(func(c *Config) *string { return &c.VectorStore.Target }),

	"enrich.similarity_threshold": {
		get: func(c *Config) string {
			return strconv.FormatFloat(c.Enrich.SimilarityThreshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for enrich.similarity_threshold: %w", err)
			}
			if f < 0 || f >= 1 {
				return fmt.Errorf("invalid value for enrich.similarity_threshold: %v must be in [0, 1)", f)
			}
			c.Enrich.SimilarityThreshold = f
			return nil
		},
	},
	"enrich.max_connections": uintKey("enrich.max_connections", func(c *Config) *uint { return &c.Enrich.MaxConnections }),
	"enrich.lease_ttl":       durationKey("enrich.lease_ttl", func(c *Config) *string { return &c.Enrich.LeaseTTL }),
	"enrich.batch_delay":     durationKey("enrich.batch_delay", func(c *Config) *string { return &c.Enrich.BatchDelay }),
	"enrich.workers":         uintKey("enrich.workers", func(c *Config) *uint { return &c.Enrich.Workers }),

	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case "", EventsNone, EventsKafka:
				c.Events.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for events.provider: %q (available: kafka, none, or empty to disable)", v)
			}
		},
	},
	"events.brokers": stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":   stringKey(func(c *Config) *string { return &c.Events.Topic }),
}

// orderedKeys lists configKeys in the TOML section layout order.
var orderedKeys = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"api.listen",
	"client.api_target",
	"client.owner",
	"analysis.provider",
	"analysis.model",
	"analysis.target",
	"analysis.timeout",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"vector_store.provider",
	"vector_store.target",
	"enrich.similarity_threshold",
	"enrich.max_connections",
	"enrich.lease_ttl",
	"enrich.batch_delay",
	"enrich.workers",
	"events.provider",
	"events.brokers",
	"events.topic",
}
