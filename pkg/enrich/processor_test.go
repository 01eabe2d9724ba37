package enrich_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/weave/pkg/analysis"
	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage"
	"github.com/papercomputeco/weave/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/weave/pkg/utils/test"
)

const owner = "owner-1"

type panickingAnalyzer struct {
	*testutils.MockAnalyzer
}

func (panickingAnalyzer) Analyze(context.Context, string) (*analysis.Result, error) {
	panic("analyzer exploded")
}

// statusWatchingAnalyzer records the stored item status every time it is
// asked to analyze.
type statusWatchingAnalyzer struct {
	*testutils.MockAnalyzer
	store  storage.Driver
	itemID string
	seen   []*notes.Item
}

func (w *statusWatchingAnalyzer) Analyze(ctx context.Context, text string) (*analysis.Result, error) {
	item, err := w.store.GetItem(ctx, w.itemID)
	if err != nil {
		return nil, err
	}
	w.seen = append(w.seen, item)
	return w.MockAnalyzer.Analyze(ctx, text)
}

// racingStore runs beforeClaim once right before the first claim reaches
// the wrapped store.
type racingStore struct {
	storage.Driver
	beforeClaim func()
}

func (r *racingStore) ClaimItem(ctx context.Context, id, token string, now time.Time, ttl time.Duration) (bool, error) {
	if r.beforeClaim != nil {
		race := r.beforeClaim
		r.beforeClaim = nil
		race()
	}
	return r.Driver.ClaimItem(ctx, id, token, now, ttl)
}

var _ = Describe("Processor", func() {
	var (
		ctx       context.Context
		store     *testutils.RecordingDriver
		analyzer  *testutils.MockAnalyzer
		index     *testutils.MockVectorDriver
		events    *testutils.RecordingPublisher
		clock     time.Time
		processor *enrich.Processor
	)

	newProcessor := func(a analysis.Analyzer) *enrich.Processor {
		return enrich.NewProcessor(enrich.Config{
			Store:    store,
			Analyzer: a,
			Index:    index,
			Events:   events,
			LeaseTTL: time.Minute,
			Now:      func() time.Time { return clock },
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = testutils.NewRecordingDriver(inmemory.NewDriver())
		analyzer = testutils.NewMockAnalyzer()
		index = testutils.NewMockVectorDriver()
		events = testutils.NewRecordingPublisher()
		clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		processor = newProcessor(analyzer)
	})

	create := func(content string) *notes.Item {
		item := notes.NewItem(owner, notes.KindText, content, "", "")
		Expect(store.Driver.CreateItem(ctx, item)).To(Succeed())
		return item
	}

	createReady := func(content string, topics ...string) *notes.Item {
		item := notes.NewItem(owner, notes.KindText, content, "", "")
		item.Status = notes.StatusReady
		item.Step = notes.StepFinalized
		item.Summary = "summary of " + content
		item.Topics = topics
		Expect(store.Driver.CreateItem(ctx, item)).To(Succeed())
		return item
	}

	stored := func(id string) *notes.Item {
		item, err := store.Driver.GetItem(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return item
	}

	connections := func(id string) []*notes.Connection {
		conns, err := store.Driver.ListConnections(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return conns
	}

	Describe("a successful run", func() {
		It("analyzes, embeds, connects and finalizes the item", func() {
			other := createReady("postgres tuning notes", "databases", "go")
			item := create("learning go generics")
			analyzer.Results["learning go generics"] = &analysis.Result{
				Title:   "Go generics",
				Summary: "Notes on generics in Go.",
				Topics:  []string{"Go", "generics", "go"},
			}
			analyzer.Explanation = "Both are about Go."

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(res.Status).To(Equal(notes.StatusReady))
			Expect(res.AlreadyProcessing).To(BeFalse())

			got := stored(item.ID)
			Expect(got.Status).To(Equal(notes.StatusReady))
			Expect(got.StatusMessage).To(BeEmpty())
			Expect(got.Step).To(Equal(notes.StepFinalized))
			Expect(got.LeaseToken).To(BeEmpty())
			Expect(got.Title).To(Equal("Go generics"))
			Expect(got.Summary).To(Equal("Notes on generics in Go."))
			Expect(got.Topics).To(Equal([]string{"Go", "generics"}))

			Expect(res.Connections).To(HaveLen(1))
			conn := res.Connections[0]
			Expect(conn.Other(item.ID)).To(Equal(other.ID))
			Expect(conn.Explanation).To(Equal("Both are about Go."))
			Expect(conn.Method).To(Equal(notes.MethodTopics))
			Expect(conn.Similarity).To(BeNumerically(">", 0.3))
		})

		It("writes each pair once under its canonical ordering", func() {
			a := createReady("first ready note", "shared")
			b := createReady("second ready note", "shared")
			item := create("a brand new note")
			analyzer.Results["a brand new note"] = &analysis.Result{Summary: "new", Topics: []string{"shared"}}

			_, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())

			conns := connections(item.ID)
			Expect(conns).To(HaveLen(2))
			for _, c := range conns {
				Expect(c.LowID < c.HighID).To(BeTrue())
				Expect([]string{c.LowID, c.HighID}).To(ContainElement(item.ID))
				Expect([]string{a.ID, b.ID}).To(ContainElement(c.Other(item.ID)))
			}
			Expect(connections(a.ID)).To(HaveLen(1))
		})

		It("skips candidates at or below the threshold", func() {
			createReady("cooking pasta", "cooking")
			item := create("kubernetes operators")
			analyzer.Results["kubernetes operators"] = &analysis.Result{Summary: "k8s", Topics: []string{"kubernetes"}}

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Connections).To(BeEmpty())
			Expect(analyzer.ExplainCalls()).To(Equal(0))
		})

		It("keeps at most five connections per run, strongest first", func() {
			for i := 0; i < 7; i++ {
				topics := []string{"go"}
				if i%2 == 1 {
					topics = append(topics, fmt.Sprintf("extra-%d", i))
				}
				createReady(fmt.Sprintf("ready note %d", i), topics...)
			}
			item := create("one more go note")
			analyzer.Results["one more go note"] = &analysis.Result{Summary: "go", Topics: []string{"go"}}

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Connections).To(HaveLen(5))
			Expect(analyzer.ExplainCalls()).To(Equal(5))
			for i := 1; i < len(res.Connections); i++ {
				Expect(res.Connections[i-1].Similarity).To(BeNumerically(">=", res.Connections[i].Similarity))
			}
		})

		It("connects related topic words when there are no embeddings", func() {
			other := createReady("notes about sql", "database systems")
			item := create("indexing strategies")
			analyzer.Results["indexing strategies"] = &analysis.Result{Summary: "indexes", Topics: []string{"databases"}}

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Connections).To(HaveLen(1))
			Expect(res.Connections[0].Other(item.ID)).To(Equal(other.ID))
			Expect(res.Connections[0].Similarity).To(BeNumerically("==", 0.5))
		})

		It("prefers embeddings when both sides have one", func() {
			other := createReady("vector note", "unrelated")
			Expect(store.Driver.UpdateItem(ctx, other.ID, storage.ItemPatch{
				Embedding: &[]float32{1, 0, 0},
			})).To(Succeed())

			item := create("embedded note")
			analyzer.Results["embedded note"] = &analysis.Result{Title: "Embedded", Summary: "e", Topics: []string{"different"}}
			analyzer.Embeddings["Embedded"] = []float32{0.9, 0.1, 0}

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Connections).To(HaveLen(1))
			Expect(res.Connections[0].Method).To(Equal(notes.MethodEmbedding))
		})

		It("stores the fallback explanation when explaining fails", func() {
			createReady("ready note", "shared")
			item := create("new note here")
			analyzer.Results["new note here"] = &analysis.Result{Summary: "s", Topics: []string{"shared"}}
			analyzer.ExplainErr = errors.New("explain failed")

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Connections).To(HaveLen(1))
			Expect(res.Connections[0].Explanation).To(Equal(enrich.FallbackExplanation))
		})

		It("continues without an embedding when embedding fails", func() {
			createReady("ready note", "shared")
			item := create("new note here")
			analyzer.Results["new note here"] = &analysis.Result{Summary: "s", Topics: []string{"shared"}}
			analyzer.EmbedErr = errors.New("embedder down")

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(stored(item.ID).HasEmbedding()).To(BeFalse())
			Expect(res.Connections).To(HaveLen(1))
			Expect(res.Connections[0].Method).To(Equal(notes.MethodTopics))
		})

		It("mirrors embeddings into the vector index", func() {
			item := create("indexed note")
			analyzer.Results["indexed note"] = &analysis.Result{Title: "Indexed", Summary: "s", Topics: []string{"t"}}
			analyzer.Embeddings["Indexed"] = []float32{0.1, 0.2}

			_, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())

			doc, ok := index.Document(item.ID)
			Expect(ok).To(BeTrue())
			Expect(doc.OwnerID).To(Equal(owner))
			Expect(doc.Embedding).To(Equal([]float32{0.1, 0.2}))
		})

		It("removes items without an embedding from the index", func() {
			item := create("unindexed note")

			_, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(index.Deleted()).To(ContainElement(item.ID))
		})

		It("finalizes even when the index rejects the document", func() {
			item := create("indexed note")
			analyzer.Results["indexed note"] = &analysis.Result{Title: "Indexed", Summary: "s", Topics: []string{"t"}}
			analyzer.Embeddings["Indexed"] = []float32{0.1, 0.2}
			index.FailAdd = errors.New("index down")

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
		})

		It("publishes an item enriched event with its connections", func() {
			other := createReady("other note", "consensus")
			item := create("published note")
			analyzer.Results["published note"] = &analysis.Result{Title: "Published", Summary: "s", Topics: []string{"consensus"}}

			_, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())

			published := events.Events()
			Expect(published).To(HaveLen(1))
			Expect(published[0].Item.ID).To(Equal(item.ID))
			Expect(published[0].Item.Title).To(Equal("Published"))
			Expect(published[0].EmittedAt).To(Equal(clock))
			Expect(published[0].Connections).To(HaveLen(1))
			Expect(published[0].Connections[0].ItemID).To(Equal(other.ID))
		})

		It("finalizes even when publishing fails", func() {
			item := create("published note")
			events.Fail = errors.New("broker down")

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(stored(item.ID).Status).To(Equal(notes.StatusReady))
		})
	})

	Describe("idempotence", func() {
		It("does nothing for a ready item", func() {
			item := create("a note to finish")
			_, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())

			calls := analyzer.TotalCalls()
			store.Reset()
			before := stored(item.ID)

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(res.Status).To(Equal(notes.StatusReady))
			Expect(store.Writes()).To(Equal(0))
			Expect(analyzer.TotalCalls()).To(Equal(calls))
			Expect(stored(item.ID).UpdatedAt).To(Equal(before.UpdatedAt))
		})
	})

	Describe("the in-flight guard", func() {
		It("reports an item with an active lease as already processing", func() {
			item := create("a held note")
			ok, err := store.Driver.ClaimItem(ctx, item.ID, "other-run", clock, time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			store.Reset()

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.AlreadyProcessing).To(BeTrue())
			Expect(res.OK).To(BeFalse())
			Expect(analyzer.TotalCalls()).To(Equal(0))
			Expect(store.Writes()).To(Equal(0))
			Expect(stored(item.ID).LeaseToken).To(Equal("other-run"))
		})

		It("reports analysis without a step marker as already processing", func() {
			item := notes.NewItem(owner, notes.KindText, "half done note", "", "")
			item.Summary = "already summarized"
			item.Topics = []string{"go"}
			Expect(store.Driver.CreateItem(ctx, item)).To(Succeed())

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.AlreadyProcessing).To(BeTrue())
			Expect(analyzer.TotalCalls()).To(Equal(0))
			Expect(store.Writes()).To(Equal(0))
		})

		It("reclaims an item whose lease expired", func() {
			item := create("an abandoned note")
			_, err := store.Driver.ClaimItem(ctx, item.ID, "crashed-run", clock.Add(-time.Hour), time.Minute)
			Expect(err).NotTo(HaveOccurred())

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
		})
	})

	Describe("claiming", func() {
		It("returns the finished item when another run finalizes it before the claim", func() {
			item := create("a contested note")
			racing := &racingStore{Driver: store}
			racing.beforeClaim = func() {
				res, err := processor.Process(ctx, item.ID, owner)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.OK).To(BeTrue())
			}
			late := enrich.NewProcessor(enrich.Config{
				Store:    racing,
				Analyzer: analyzer,
				LeaseTTL: time.Minute,
				Now:      func() time.Time { return clock },
			})

			res, err := late.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(res.Status).To(Equal(notes.StatusReady))
			Expect(res.AlreadyProcessing).To(BeFalse())
			Expect(analyzer.AnalyzeCalls()).To(Equal(1))
			Expect(analyzer.EmbedCalls()).To(Equal(1))

			got := stored(item.ID)
			Expect(got.Status).To(Equal(notes.StatusReady))
			Expect(got.LeaseToken).To(BeEmpty())
			Expect(events.Events()).To(HaveLen(1))
		})

		It("marks an errored item processing before analyzing it again", func() {
			item := notes.NewItem(owner, notes.KindText, "a note that failed before", "", "")
			item.Status = notes.StatusError
			item.StatusMessage = "old failure"
			Expect(store.Driver.CreateItem(ctx, item)).To(Succeed())

			watcher := &statusWatchingAnalyzer{MockAnalyzer: analyzer, store: store.Driver, itemID: item.ID}
			processor = newProcessor(watcher)

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())

			Expect(watcher.seen).To(HaveLen(1))
			Expect(watcher.seen[0].Status).To(Equal(notes.StatusProcessing))
			Expect(watcher.seen[0].StatusMessage).To(BeEmpty())
			Expect(stored(item.ID).Status).To(Equal(notes.StatusReady))
		})

		It("reruns a finalized item that a batch reset to processing", func() {
			item := notes.NewItem(owner, notes.KindText, "a note finished before", "", "")
			item.Summary = "old summary"
			item.Topics = []string{"old"}
			item.Step = notes.StepFinalized
			Expect(store.Driver.CreateItem(ctx, item)).To(Succeed())

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(res.AlreadyProcessing).To(BeFalse())
			Expect(analyzer.AnalyzeCalls()).To(Equal(1))
			Expect(stored(item.ID).Status).To(Equal(notes.StatusReady))
		})
	})

	Describe("resuming", func() {
		It("continues a crashed run from its last step", func() {
			createReady("ready note", "go")
			item := notes.NewItem(owner, notes.KindText, "interrupted note", "", "")
			item.Summary = "kept summary"
			item.Topics = []string{"go"}
			item.Step = notes.StepAnalyzed
			item.LeaseToken = "crashed-run"
			item.LeaseExpiresAt = clock.Add(-time.Second)
			Expect(store.Driver.CreateItem(ctx, item)).To(Succeed())

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(analyzer.AnalyzeCalls()).To(Equal(0))
			Expect(analyzer.EmbedCalls()).To(Equal(1))
			Expect(res.Item.Summary).To(Equal("kept summary"))
			Expect(res.Connections).To(HaveLen(1))
		})

		It("redoes the similarity scan after a failed step without duplicating connections", func() {
			createReady("ready note", "shared")
			item := create("retried note")
			analyzer.Results["retried note"] = &analysis.Result{Summary: "s", Topics: []string{"shared"}}

			failOnce := true
			store.FailUpdate = func(_ string, patch storage.ItemPatch) error {
				if failOnce && patch.Step != nil && *patch.Step == notes.StepConnectionsComputed {
					failOnce = false
					return errors.New("disk full")
				}
				return nil
			}

			_, err := processor.Process(ctx, item.ID, owner)
			Expect(enrich.IsCategory(err, enrich.CategoryUnknown)).To(BeTrue())

			failed := stored(item.ID)
			Expect(failed.Status).To(Equal(notes.StatusError))
			Expect(failed.Step).To(Equal(notes.StepEmbedded))
			Expect(failed.LeaseToken).To(BeEmpty())
			Expect(connections(item.ID)).To(HaveLen(1))

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(analyzer.AnalyzeCalls()).To(Equal(1))
			Expect(analyzer.EmbedCalls()).To(Equal(1))
			Expect(connections(item.ID)).To(HaveLen(1))
		})
	})

	Describe("failures", func() {
		It("rejects an unknown item", func() {
			_, err := processor.Process(ctx, "missing", owner)
			Expect(enrich.IsCategory(err, enrich.CategoryNotFound)).To(BeTrue())
		})

		It("rejects an item of another owner without touching it", func() {
			item := create("somebody else's note")
			store.Reset()

			_, err := processor.Process(ctx, item.ID, "owner-2")
			Expect(enrich.IsCategory(err, enrich.CategoryForbidden)).To(BeTrue())
			Expect(store.Writes()).To(Equal(0))
			Expect(stored(item.ID).Status).To(Equal(notes.StatusProcessing))
		})

		It("fails short content without calling the analyzer", func() {
			item := create(" a ")

			res, err := processor.Process(ctx, item.ID, owner)
			Expect(res).To(BeNil())
			Expect(enrich.IsCategory(err, enrich.CategoryInsufficientContent)).To(BeTrue())
			Expect(analyzer.TotalCalls()).To(Equal(0))

			got := stored(item.ID)
			Expect(got.Status).To(Equal(notes.StatusError))
			Expect(got.StatusMessage).To(Equal(enrich.CategoryInsufficientContent.Message()))
			Expect(got.LeaseToken).To(BeEmpty())
		})

		It("records tagged analyzer failures with their category", func() {
			item := create("a rate limited note")
			analyzer.AnalyzeErr = func(string) error {
				return &analysis.Error{Kind: analysis.KindQuota, StatusCode: 429, Provider: "openai"}
			}

			_, err := processor.Process(ctx, item.ID, owner)
			var e *enrich.Error
			Expect(errors.As(err, &e)).To(BeTrue())
			Expect(e.Category).To(Equal(enrich.CategoryAIQuota))
			Expect(e.Retryable()).To(BeTrue())
			Expect(stored(item.ID).StatusMessage).To(Equal(enrich.CategoryAIQuota.Message()))
		})

		It("turns a panic into an unknown failure", func() {
			item := create("a note that panics")
			processor = newProcessor(panickingAnalyzer{analyzer})

			_, err := processor.Process(ctx, item.ID, owner)
			Expect(enrich.IsCategory(err, enrich.CategoryUnknown)).To(BeTrue())

			got := stored(item.ID)
			Expect(got.Status).To(Equal(notes.StatusError))
			Expect(got.LeaseToken).To(BeEmpty())
		})

		It("records the failure even when the context was cancelled", func() {
			item := create("a cancelled note")
			cancelled, cancel := context.WithCancel(ctx)
			analyzer.AnalyzeErr = func(string) error {
				cancel()
				return context.Canceled
			}

			_, err := processor.Process(cancelled, item.ID, owner)
			Expect(err).To(HaveOccurred())
			Expect(stored(item.ID).Status).To(Equal(notes.StatusError))
		})

		It("retries an errored item from the start", func() {
			item := create("flaky note")
			analyzer.AnalyzeErr = func(string) error { return errors.New("connection refused") }

			_, err := processor.Process(ctx, item.ID, owner)
			Expect(enrich.IsCategory(err, enrich.CategoryNetwork)).To(BeTrue())

			analyzer.AnalyzeErr = nil
			res, err := processor.Process(ctx, item.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK).To(BeTrue())
			Expect(stored(item.ID).StatusMessage).To(BeEmpty())
		})
	})
})
