// Package stack assembles the store, analyzer, vector index, processor and
// batch orchestrator shared by the weave commands from resolved settings.
package stack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/cmd/weave/sqlitepath"
	"github.com/papercomputeco/weave/pkg/analysis"
	"github.com/papercomputeco/weave/pkg/batch"
	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/credentials"
	embeddingutils "github.com/papercomputeco/weave/pkg/embeddings/utils"
	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/eventstream"
	"github.com/papercomputeco/weave/pkg/eventstream/kafka"
	"github.com/papercomputeco/weave/pkg/eventstream/nop"
	"github.com/papercomputeco/weave/pkg/storage"
	"github.com/papercomputeco/weave/pkg/storage/inmemory"
	"github.com/papercomputeco/weave/pkg/storage/postgres"
	"github.com/papercomputeco/weave/pkg/storage/sqlite"
	"github.com/papercomputeco/weave/pkg/vector"
	vectorutils "github.com/papercomputeco/weave/pkg/vector/utils"
)

// Settings is the resolved configuration of a stack.
type Settings struct {
	ConfigDir string

	StorageDriver string
	SQLitePath    string
	PostgresDSN   string

	AnalysisProvider string
	AnalysisModel    string
	AnalysisTarget   string
	AnalysisTimeout  time.Duration

	EmbeddingProvider   string
	EmbeddingTarget     string
	EmbeddingModel      string
	EmbeddingDimensions uint

	VectorStoreProvider string
	VectorStoreTarget   string

	SimilarityThreshold float64
	MaxConnections      int
	LeaseTTL            time.Duration
	BatchDelay          time.Duration

	EventsProvider string
	EventsBrokers  []string
	EventsTopic    string
}

// SettingsFromViper reads Settings from v.
func SettingsFromViper(v *viper.Viper, configDir string) Settings {
	return Settings{
		ConfigDir: configDir,

		StorageDriver: v.GetString("storage.driver"),
		SQLitePath:    v.GetString("storage.sqlite_path"),
		PostgresDSN:   v.GetString("storage.postgres_dsn"),

		AnalysisProvider: v.GetString("analysis.provider"),
		AnalysisModel:    v.GetString("analysis.model"),
		AnalysisTarget:   v.GetString("analysis.target"),
		AnalysisTimeout:  v.GetDuration("analysis.timeout"),

		EmbeddingProvider:   v.GetString("embedding.provider"),
		EmbeddingTarget:     v.GetString("embedding.target"),
		EmbeddingModel:      v.GetString("embedding.model"),
		EmbeddingDimensions: v.GetUint("embedding.dimensions"),

		VectorStoreProvider: v.GetString("vector_store.provider"),
		VectorStoreTarget:   v.GetString("vector_store.target"),

		SimilarityThreshold: v.GetFloat64("enrich.similarity_threshold"),
		MaxConnections:      v.GetInt("enrich.max_connections"),
		LeaseTTL:            v.GetDuration("enrich.lease_ttl"),
		BatchDelay:          v.GetDuration("enrich.batch_delay"),

		EventsProvider: v.GetString("events.provider"),
		EventsBrokers:  splitList(v.GetString("events.brokers")),
		EventsTopic:    v.GetString("events.topic"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Stack holds the assembled components. Close releases them.
type Stack struct {
	Store     storage.Driver
	Analyzer  *analysis.Service
	Index     vector.Driver
	Events    eventstream.Publisher
	Processor *enrich.Processor
	Batch     *batch.Orchestrator

	logger *zap.Logger
}

// NewStore opens the configured item store.
func NewStore(ctx context.Context, s Settings, logger *zap.Logger) (storage.Driver, error) {
	switch s.StorageDriver {
	case config.StorageMemory:
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.StoragePostgres:
		if s.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		driver, err := postgres.NewDriver(ctx, s.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil

	case config.StorageSQLite, "":
		path, err := sqlitepath.ResolveSQLitePath(s.SQLitePath, s.ConfigDir)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		logger.Info("using SQLite storage", zap.String("path", path))
		return driver, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", s.StorageDriver)
	}
}

// New assembles a full local stack.
func New(ctx context.Context, s Settings, logger *zap.Logger) (_ *Stack, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st := &Stack{logger: logger}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	st.Store, err = NewStore(ctx, s, logger)
	if err != nil {
		return nil, err
	}

	creds, err := credentials.NewManager(s.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	analysisKey, err := creds.ResolveKey(s.AnalysisProvider)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	call, err := analysis.NewCaller(analysis.CallerConfig{
		Provider: s.AnalysisProvider,
		APIKey:   analysisKey,
		Model:    s.AnalysisModel,
		BaseURL:  s.AnalysisTarget,
		Timeout:  s.AnalysisTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating analysis caller: %w", err)
	}

	embeddingKey, err := creds.ResolveKey(s.EmbeddingProvider)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: s.EmbeddingProvider,
		TargetURL:    s.EmbeddingTarget,
		Model:        s.EmbeddingModel,
		Dimensions:   s.EmbeddingDimensions,
		APIKey:       embeddingKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	if embedder == nil {
		logger.Info("embeddings disabled, similarity uses topic overlap")
	}

	st.Analyzer = analysis.NewService(analysis.ServiceConfig{
		Call:     call,
		Provider: s.AnalysisProvider,
		Embedder: embedder,
		Logger:   logger,
	})

	index, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: s.VectorStoreProvider,
		TargetURL:    s.VectorStoreTarget,
		Dimensions:   s.EmbeddingDimensions,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}
	st.Index = index

	events, err := NewPublisher(s, logger)
	if err != nil {
		return nil, err
	}
	st.Events = events

	st.Processor = enrich.NewProcessor(enrich.Config{
		Store:          st.Store,
		Analyzer:       st.Analyzer,
		Index:          st.Index,
		Events:         st.Events,
		Logger:         logger,
		Threshold:      s.SimilarityThreshold,
		MaxConnections: s.MaxConnections,
		LeaseTTL:       s.LeaseTTL,
		CallTimeout:    s.AnalysisTimeout,
	})

	st.Batch = NewOrchestrator(st.Store, st.Processor, s, logger)

	logger.Info("processing stack ready",
		zap.String("analysis_provider", s.AnalysisProvider),
		zap.String("embedding_provider", s.EmbeddingProvider),
		zap.String("vector_store", s.VectorStoreProvider),
		zap.String("events", s.EventsProvider),
	)

	return st, nil
}

// NewPublisher creates the configured item event publisher. It returns nil
// when publishing is disabled.
func NewPublisher(s Settings, logger *zap.Logger) (eventstream.Publisher, error) {
	switch s.EventsProvider {
	case "":
		return nil, nil
	case config.EventsNone:
		return nop.NewPublisher(), nil
	case config.EventsKafka:
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: s.EventsBrokers,
			Topic:   s.EventsTopic,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		logger.Info("publishing item events to kafka",
			zap.Strings("brokers", s.EventsBrokers),
			zap.String("topic", s.EventsTopic),
		)
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", s.EventsProvider)
	}
}

// NewOrchestrator builds a batch orchestrator over store and processor with
// the configured delay. The processor may be remote.
func NewOrchestrator(store storage.Driver, processor enrich.ItemProcessor, s Settings, logger *zap.Logger) *batch.Orchestrator {
	return batch.NewOrchestrator(batch.Config{
		Store:     store,
		Processor: processor,
		Delay:     s.BatchDelay,
		Logger:    logger,
	})
}

// Close releases every component that was opened.
func (s *Stack) Close() error {
	var errs []error
	if s.Events != nil {
		errs = append(errs, s.Events.Close())
	}
	if s.Index != nil {
		errs = append(errs, s.Index.Close())
	}
	if s.Analyzer != nil {
		errs = append(errs, s.Analyzer.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}
