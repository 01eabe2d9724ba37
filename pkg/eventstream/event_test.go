package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/weave/pkg/eventstream"
	"github.com/papercomputeco/weave/pkg/notes"
)

var _ = Describe("Event", func() {
	var (
		now   time.Time
		item  *notes.Item
		conns []*notes.Connection
	)

	BeforeEach(func() {
		now = time.Unix(1735689600, 0)
		item = notes.NewItem("alice", notes.KindText, "raft consensus", "", "Raft")
		item.Summary = "Leader election"
		item.Topics = []string{"consensus"}
		item.Embedding = []float32{1, 0}
		conns = []*notes.Connection{
			notes.NewConnection("alice", item.ID, "other", 0.8, "both cover consensus", notes.MethodEmbedding),
		}
	})

	It("builds an item enriched event seen from the item", func() {
		event := eventstream.NewItemEnrichedEvent(item, conns, now)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeItemEnriched))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.EmittedAt).To(Equal(now.UTC()))
		Expect(event.Item.ID).To(Equal(item.ID))
		Expect(event.Item.OwnerID).To(Equal("alice"))
		Expect(event.Item.HasEmbedding).To(BeTrue())
		Expect(event.Connections).To(ConsistOf(eventstream.ConnectionMeta{
			ItemID:     "other",
			Similarity: 0.8,
			Method:     notes.MethodEmbedding,
		}))
	})

	It("marshals with the expected top-level keys and no content", func() {
		payload, err := json.Marshal(eventstream.NewItemEnrichedEvent(item, nil, now))
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("item"))
		Expect(got).To(HaveKeyWithValue("connections", BeEmpty()))
		Expect(got["item"]).NotTo(HaveKey("content"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeItemEnriched).To(Equal("weave.item.enriched"))
	})

	It("provides ErrNilItemEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilItemEvent).To(MatchError("nil item event"))
	})
})
