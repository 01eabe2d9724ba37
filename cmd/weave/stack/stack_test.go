package stack_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/cmd/weave/stack"
	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/credentials"
	"github.com/papercomputeco/weave/pkg/eventstream/nop"
	"github.com/papercomputeco/weave/pkg/storage/inmemory"
	"github.com/papercomputeco/weave/pkg/storage/sqlite"
)

var _ = Describe("Stack", func() {
	var (
		ctx    context.Context
		tmpDir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "stack-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })
	})

	Describe("SettingsFromViper", func() {
		It("reads defaults and file values", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(`[enrich]
batch_delay = "250ms"
max_connections = 3
`), 0o600)).To(Succeed())

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			s := stack.SettingsFromViper(v, tmpDir)
			Expect(s.ConfigDir).To(Equal(tmpDir))
			Expect(s.StorageDriver).To(Equal(config.StorageSQLite))
			Expect(s.AnalysisTimeout).To(Equal(30 * time.Second))
			Expect(s.BatchDelay).To(Equal(250 * time.Millisecond))
			Expect(s.MaxConnections).To(Equal(3))
			Expect(s.SimilarityThreshold).To(Equal(0.3))
			Expect(s.LeaseTTL).To(Equal(5 * time.Minute))
			Expect(s.EventsProvider).To(BeEmpty())
			Expect(s.EventsTopic).To(Equal("weave.items"))
		})

		It("splits the events broker list", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(`[events]
provider = "kafka"
brokers = "kafka-1:9092, kafka-2:9092,"
`), 0o600)).To(Succeed())

			v, err := config.InitViper(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			s := stack.SettingsFromViper(v, tmpDir)
			Expect(s.EventsProvider).To(Equal(config.EventsKafka))
			Expect(s.EventsBrokers).To(Equal([]string{"kafka-1:9092", "kafka-2:9092"}))
		})
	})

	Describe("NewPublisher", func() {
		It("returns nil when publishing is disabled", func() {
			pub, err := stack.NewPublisher(stack.Settings{}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			Expect(pub).To(BeNil())
		})

		It("creates a dropping publisher for none", func() {
			pub, err := stack.NewPublisher(stack.Settings{EventsProvider: config.EventsNone}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			Expect(pub).To(BeAssignableToTypeOf(&nop.Publisher{}))
		})

		It("creates a kafka publisher", func() {
			pub, err := stack.NewPublisher(stack.Settings{
				EventsProvider: config.EventsKafka,
				EventsBrokers:  []string{"localhost:9092"},
				EventsTopic:    "weave.items",
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			Expect(pub).NotTo(BeNil())
			Expect(pub.Close()).To(Succeed())
		})

		It("requires brokers for kafka", func() {
			_, err := stack.NewPublisher(stack.Settings{EventsProvider: config.EventsKafka, EventsTopic: "t"}, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("broker")))
		})

		It("rejects unknown providers", func() {
			_, err := stack.NewPublisher(stack.Settings{EventsProvider: "nats"}, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("unsupported events provider")))
		})
	})

	Describe("NewStore", func() {
		It("opens the in-memory store", func() {
			store, err := stack.NewStore(ctx, stack.Settings{StorageDriver: config.StorageMemory}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			Expect(store).To(BeAssignableToTypeOf(&inmemory.Driver{}))
		})

		It("opens SQLite at the configured path", func() {
			path := filepath.Join(tmpDir, "notes.db")
			store, err := stack.NewStore(ctx, stack.Settings{StorageDriver: config.StorageSQLite, SQLitePath: path}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(store.Close)

			Expect(store).To(BeAssignableToTypeOf(&sqlite.SQLiteDriver{}))
			Expect(path).To(BeAnExistingFile())
		})

		It("requires a DSN for postgres", func() {
			_, err := stack.NewStore(ctx, stack.Settings{StorageDriver: config.StoragePostgres}, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
		})

		It("rejects unknown drivers", func() {
			_, err := stack.NewStore(ctx, stack.Settings{StorageDriver: "mongo"}, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("unsupported storage driver")))
		})
	})

	Describe("New", func() {
		It("assembles a local stack without embeddings or index", func() {
			st, err := stack.New(ctx, stack.Settings{
				ConfigDir:         tmpDir,
				StorageDriver:     config.StorageMemory,
				AnalysisProvider:  "ollama",
				EmbeddingProvider: "none",
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(st.Close)

			Expect(st.Store).NotTo(BeNil())
			Expect(st.Processor).NotTo(BeNil())
			Expect(st.Batch).NotTo(BeNil())
			Expect(st.Index).To(BeNil())
			Expect(st.Events).To(BeNil())
		})

		It("uses a stored key for a hosted analysis provider", func() {
			old, had := os.LookupEnv("ANTHROPIC_API_KEY")
			os.Unsetenv("ANTHROPIC_API_KEY")
			DeferCleanup(func() {
				if had {
					os.Setenv("ANTHROPIC_API_KEY", old)
				}
			})

			settings := stack.Settings{
				ConfigDir:         tmpDir,
				StorageDriver:     config.StorageMemory,
				AnalysisProvider:  "anthropic",
				EmbeddingProvider: "none",
			}

			_, err := stack.New(ctx, settings, nil)
			Expect(err).To(MatchError(ContainSubstring("no API key found for anthropic")))

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetKey("anthropic", "sk-ant-test")).To(Succeed())

			st, err := stack.New(ctx, settings, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(st.Close)
		})

		It("fails on an unknown analysis provider", func() {
			_, err := stack.New(ctx, stack.Settings{
				ConfigDir:        tmpDir,
				StorageDriver:    config.StorageMemory,
				AnalysisProvider: "mystery",
			}, nil)
			Expect(err).To(MatchError(ContainSubstring("unsupported provider")))
		})

		It("fails on an unknown vector store", func() {
			_, err := stack.New(ctx, stack.Settings{
				ConfigDir:           tmpDir,
				StorageDriver:       config.StorageMemory,
				AnalysisProvider:    "ollama",
				EmbeddingProvider:   "none",
				VectorStoreProvider: "chroma",
			}, nil)
			Expect(err).To(MatchError(ContainSubstring("unsupported vector store provider")))
		})
	})
})
