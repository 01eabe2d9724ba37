package worker

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/weave/pkg/utils/test"
)

// blockingProcessor holds every job until release is closed.
type blockingProcessor struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []string
}

func (b *blockingProcessor) Process(_ context.Context, itemID, _ string) (*enrich.Result, error) {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = append(b.seen, itemID)
	return &enrich.Result{OK: true, Status: notes.StatusReady}, nil
}

// newTestPool creates a worker pool backed by an in-memory driver and a
// mock analyzer. Callers should "wp.Close()" to drain enqueued jobs before
// asserting storage state.
func newTestPool() (*Pool, *inmemory.Driver, *testutils.MockAnalyzer) {
	logger, _ := zap.NewDevelopment()
	driver := inmemory.NewDriver()
	analyzer := testutils.NewMockAnalyzer()

	wp, err := NewPool(&Config{
		Processor: enrich.NewProcessor(enrich.Config{
			Store:    driver,
			Analyzer: analyzer,
			Logger:   logger,
		}),
		Logger: logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver, analyzer
}

var _ = Describe("Worker Pool", func() {
	var (
		wp       *Pool
		driver   *inmemory.Driver
		analyzer *testutils.MockAnalyzer
		ctx      context.Context
	)

	BeforeEach(func() {
		wp, driver, analyzer = newTestPool()
		ctx = context.Background()
	})

	It("requires a processor", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
		wp.Close()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{ItemID: "missing", OwnerID: "owner-1"})).To(BeTrue())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			wp.Close()

			blocker := &blockingProcessor{release: make(chan struct{})}
			full, err := NewPool(&Config{Processor: blocker, NumWorkers: 1, QueueSize: 1})
			Expect(err).NotTo(HaveOccurred())

			// The first job occupies the only worker and the second fills the
			// queue, so the third is eventually rejected.
			Expect(full.Enqueue(Job{ItemID: "a"})).To(BeTrue())
			Eventually(func() bool {
				return full.Enqueue(Job{ItemID: "b"}) && !full.Enqueue(Job{ItemID: "c"})
			}).Should(BeTrue())

			close(blocker.release)
			full.Close()
			Expect(blocker.seen).To(ContainElements("a", "b"))
		})
	})

	Describe("processing", func() {
		It("enriches every queued item before Close returns", func() {
			var ids []string
			for _, content := range []string{"first note body", "second note body", "third note body"} {
				item := notes.NewItem("owner-1", notes.KindText, content, "", "")
				Expect(driver.CreateItem(ctx, item)).To(Succeed())
				ids = append(ids, item.ID)
				Expect(wp.Enqueue(Job{ItemID: item.ID, OwnerID: "owner-1"})).To(BeTrue())
			}

			wp.Close()

			for _, id := range ids {
				item, err := driver.GetItem(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(item.Status).To(Equal(notes.StatusReady))
			}
			Expect(analyzer.AnalyzeCalls()).To(Equal(3))
		})

		It("leaves failed items in the error status", func() {
			item := notes.NewItem("owner-1", notes.KindText, "x", "", "")
			Expect(driver.CreateItem(ctx, item)).To(Succeed())
			Expect(wp.Enqueue(Job{ItemID: item.ID, OwnerID: "owner-1"})).To(BeTrue())

			wp.Close()

			got, err := driver.GetItem(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(notes.StatusError))
			Expect(got.StatusMessage).To(Equal(enrich.CategoryInsufficientContent.Message()))
		})
	})
})
