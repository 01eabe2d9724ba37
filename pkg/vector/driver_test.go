package vector_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/weave/pkg/vector"
)

var _ = Describe("FilterOwner", func() {
	It("keeps only the owner's results in order", func() {
		results := []vector.QueryResult{
			{Document: vector.Document{ID: "a", OwnerID: "o1"}, Score: 0.9},
			{Document: vector.Document{ID: "b", OwnerID: "o2"}, Score: 0.8},
			{Document: vector.Document{ID: "c", OwnerID: "o1"}, Score: 0.7},
		}

		filtered := vector.FilterOwner(results, "o1")
		Expect(filtered).To(HaveLen(2))
		Expect(filtered[0].ID).To(Equal("a"))
		Expect(filtered[1].ID).To(Equal("c"))
		Expect(results).To(HaveLen(3))
	})

	It("returns nothing for an unknown owner", func() {
		Expect(vector.FilterOwner([]vector.QueryResult{{Document: vector.Document{ID: "a", OwnerID: "o1"}}}, "x")).To(BeEmpty())
	})
})
