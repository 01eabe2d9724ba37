// Package storagetest holds the behaviour every storage.Driver must share.
// Driver test suites call DescribeDriver from a package level var block.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage"
)

// DescribeDriver registers the shared driver specs. newDriver is called
// before each spec and must return an empty store.
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" driver behaviour", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		newItem := func(owner, content string, created time.Time) *notes.Item {
			item := notes.NewItem(owner, notes.KindText, content, "", "")
			item.CreatedAt = created
			item.UpdatedAt = created
			return item
		}

		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		Describe("CreateItem and GetItem", func() {
			It("round trips every field", func() {
				item := newItem("owner-1", "some text", base)
				item.Title = "A title"
				item.Summary = "A summary"
				item.Topics = []string{"go", "storage"}
				item.Tags = []string{"work"}
				item.Embedding = []float32{0.25, -0.5, 1}
				item.Status = notes.StatusReady
				item.Step = notes.StepFinalized
				Expect(driver.CreateItem(ctx, item)).To(Succeed())

				got, err := driver.GetItem(ctx, item.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal(item.ID))
				Expect(got.OwnerID).To(Equal("owner-1"))
				Expect(got.Kind).To(Equal(notes.KindText))
				Expect(got.Content).To(Equal("some text"))
				Expect(got.Title).To(Equal("A title"))
				Expect(got.Summary).To(Equal("A summary"))
				Expect(got.Topics).To(Equal([]string{"go", "storage"}))
				Expect(got.Tags).To(Equal([]string{"work"}))
				Expect(got.Embedding).To(Equal([]float32{0.25, -0.5, 1}))
				Expect(got.Status).To(Equal(notes.StatusReady))
				Expect(got.Step).To(Equal(notes.StepFinalized))
				Expect(got.CreatedAt.Equal(base)).To(BeTrue())
			})

			It("stores an item without an embedding", func() {
				item := newItem("owner-1", "plain", base)
				Expect(driver.CreateItem(ctx, item)).To(Succeed())

				got, err := driver.GetItem(ctx, item.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.HasEmbedding()).To(BeFalse())
				Expect(got.Topics).To(BeEmpty())
			})

			It("rejects a nil item", func() {
				Expect(driver.CreateItem(ctx, nil)).To(MatchError(storage.ErrNilItem))
			})

			It("returns NotFoundError for an unknown id", func() {
				_, err := driver.GetItem(ctx, "missing")
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("UpdateItem", func() {
			It("changes only the patched fields", func() {
				item := newItem("owner-1", "text", base)
				item.Title = "keep me"
				Expect(driver.CreateItem(ctx, item)).To(Succeed())

				summary := "fresh summary"
				topics := []string{"alpha"}
				step := notes.StepAnalyzed
				Expect(driver.UpdateItem(ctx, item.ID, storage.ItemPatch{
					Summary: &summary,
					Topics:  &topics,
					Step:    &step,
				})).To(Succeed())

				got, err := driver.GetItem(ctx, item.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Title).To(Equal("keep me"))
				Expect(got.Summary).To(Equal("fresh summary"))
				Expect(got.Topics).To(Equal([]string{"alpha"}))
				Expect(got.Step).To(Equal(notes.StepAnalyzed))
				Expect(got.Status).To(Equal(notes.StatusProcessing))
			})

			It("clears an embedding with an empty slice", func() {
				item := newItem("owner-1", "text", base)
				item.Embedding = []float32{1, 2}
				Expect(driver.CreateItem(ctx, item)).To(Succeed())

				empty := []float32{}
				Expect(driver.UpdateItem(ctx, item.ID, storage.ItemPatch{Embedding: &empty})).To(Succeed())

				got, err := driver.GetItem(ctx, item.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.HasEmbedding()).To(BeFalse())
			})

			It("returns NotFoundError for an unknown id", func() {
				summary := "x"
				err := driver.UpdateItem(ctx, "missing", storage.ItemPatch{Summary: &summary})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("ClaimItem", func() {
			var item *notes.Item

			BeforeEach(func() {
				item = newItem("owner-1", "text", base)
				Expect(driver.CreateItem(ctx, item)).To(Succeed())
			})

			It("grants the lease to exactly one claimant", func() {
				ok, err := driver.ClaimItem(ctx, item.ID, "first", base, time.Minute)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())

				ok, err = driver.ClaimItem(ctx, item.ID, "second", base.Add(time.Second), time.Minute)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())

				got, err := driver.GetItem(ctx, item.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.LeaseToken).To(Equal("first"))
			})

			It("allows a new claim once the lease expires", func() {
				ok, err := driver.ClaimItem(ctx, item.ID, "first", base, time.Minute)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())

				ok, err = driver.ClaimItem(ctx, item.ID, "second", base.Add(2*time.Minute), time.Minute)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			})

			It("allows a new claim after the lease is released", func() {
				ok, err := driver.ClaimItem(ctx, item.ID, "first", base, time.Hour)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())

				Expect(driver.UpdateItem(ctx, item.ID, storage.ItemPatch{ReleaseLease: true})).To(Succeed())

				ok, err = driver.ClaimItem(ctx, item.ID, "second", base.Add(time.Second), time.Hour)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			})

			It("returns NotFoundError for an unknown id", func() {
				_, err := driver.ClaimItem(ctx, "missing", "token", base, time.Minute)
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("listing", func() {
			var ready, errored, unanalyzed, other *notes.Item

			BeforeEach(func() {
				ready = newItem("owner-1", "ready", base)
				ready.Status = notes.StatusReady
				ready.Summary = "done"

				errored = newItem("owner-1", "errored", base.Add(time.Minute))
				errored.Status = notes.StatusError

				unanalyzed = newItem("owner-1", "unanalyzed", base.Add(2*time.Minute))

				other = newItem("owner-2", "other", base)
				other.Status = notes.StatusReady
				other.Summary = "done"

				for _, it := range []*notes.Item{unanalyzed, errored, ready, other} {
					Expect(driver.CreateItem(ctx, it)).To(Succeed())
				}
			})

			It("lists the owner's items oldest first", func() {
				items, err := driver.ListItems(ctx, "owner-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(items)).To(Equal([]string{ready.ID, errored.ID, unanalyzed.ID}))
			})

			It("lists pending items", func() {
				items, err := driver.ListPending(ctx, "owner-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(items)).To(Equal([]string{errored.ID, unanalyzed.ID}))
			})

			It("lists ready candidates excluding the target", func() {
				second := newItem("owner-1", "second ready", base.Add(3*time.Minute))
				second.Status = notes.StatusReady
				Expect(driver.CreateItem(ctx, second)).To(Succeed())

				items, err := driver.ListCandidates(ctx, "owner-1", ready.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(items)).To(Equal([]string{second.ID}))
			})

			It("marks many items and keeps their leases", func() {
				ok, err := driver.ClaimItem(ctx, unanalyzed.ID, "token", base, time.Hour)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())

				Expect(driver.MarkItems(ctx, []string{errored.ID, unanalyzed.ID}, notes.StatusError, "stopped")).To(Succeed())

				for _, id := range []string{errored.ID, unanalyzed.ID} {
					got, err := driver.GetItem(ctx, id)
					Expect(err).NotTo(HaveOccurred())
					Expect(got.Status).To(Equal(notes.StatusError))
					Expect(got.StatusMessage).To(Equal("stopped"))
				}

				got, err := driver.GetItem(ctx, unanalyzed.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.LeaseToken).To(Equal("token"))
			})

			It("accepts an empty id list", func() {
				Expect(driver.MarkItems(ctx, nil, notes.StatusError, "x")).To(Succeed())
			})
		})

		Describe("connections", func() {
			var a, b, c *notes.Item

			BeforeEach(func() {
				a = newItem("owner-1", "a", base)
				b = newItem("owner-1", "b", base)
				c = newItem("owner-1", "c", base)
				for _, it := range []*notes.Item{a, b, c} {
					Expect(driver.CreateItem(ctx, it)).To(Succeed())
				}
			})

			It("keeps one row per unordered pair", func() {
				Expect(driver.UpsertConnection(ctx, notes.NewConnection("owner-1", a.ID, b.ID, 0.4, "first", notes.MethodEmbedding))).To(Succeed())
				Expect(driver.UpsertConnection(ctx, notes.NewConnection("owner-1", b.ID, a.ID, 0.8, "second", notes.MethodTopics))).To(Succeed())

				conns, err := driver.ListConnections(ctx, a.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(conns).To(HaveLen(1))
				Expect(conns[0].Similarity).To(BeNumerically("~", 0.8, 1e-9))
				Expect(conns[0].Explanation).To(Equal("second"))
				Expect(conns[0].Method).To(Equal(notes.MethodTopics))

				low, high := notes.CanonicalPair(a.ID, b.ID)
				Expect(conns[0].LowID).To(Equal(low))
				Expect(conns[0].HighID).To(Equal(high))
			})

			It("lists connections from either side, strongest first", func() {
				Expect(driver.UpsertConnection(ctx, notes.NewConnection("owner-1", a.ID, b.ID, 0.4, "ab", notes.MethodEmbedding))).To(Succeed())
				Expect(driver.UpsertConnection(ctx, notes.NewConnection("owner-1", c.ID, a.ID, 0.9, "ca", notes.MethodEmbedding))).To(Succeed())

				conns, err := driver.ListConnections(ctx, a.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(conns).To(HaveLen(2))
				Expect(conns[0].Explanation).To(Equal("ca"))
				Expect(conns[1].Explanation).To(Equal("ab"))

				conns, err = driver.ListConnections(ctx, b.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(conns).To(HaveLen(1))
				Expect(conns[0].Other(b.ID)).To(Equal(a.ID))
			})

			It("rejects a nil connection", func() {
				Expect(driver.UpsertConnection(ctx, nil)).To(MatchError(storage.ErrNilItem))
			})
		})
	})
}

func ids(items []*notes.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
