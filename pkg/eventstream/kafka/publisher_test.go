package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/weave/pkg/eventstream"
	"github.com/papercomputeco/weave/pkg/notes"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer *fakeWriter
		pub    *Publisher
		event  *eventstream.ItemEnrichedEvent
	)

	BeforeEach(func() {
		writer = &fakeWriter{}
		pub = newPublisher(writer, "weave.items", nil)

		item := notes.NewItem("alice", notes.KindText, "raft consensus", "", "Raft")
		event = eventstream.NewItemEnrichedEvent(item, nil, time.Unix(1735689600, 0))
	})

	It("writes the event as JSON keyed by owner", func() {
		Expect(pub.PublishItem(context.Background(), event)).To(Succeed())

		Expect(writer.messages).To(HaveLen(1))
		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("alice"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeItemEnriched)}))

		var decoded eventstream.ItemEnrichedEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.Item.Title).To(Equal("Raft"))
	})

	It("rejects nil events", func() {
		Expect(pub.PublishItem(context.Background(), nil)).To(MatchError(eventstream.ErrNilItemEvent))
		Expect(writer.messages).To(BeEmpty())
	})

	It("wraps writer errors with the topic", func() {
		writer.err = errors.New("broker down")
		err := pub.PublishItem(context.Background(), event)
		Expect(err).To(MatchError(ContainSubstring("publishing to weave.items")))
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(pub.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})

	Describe("NewPublisher", func() {
		It("requires a broker", func() {
			_, err := NewPublisher(Config{Brokers: []string{" "}, Topic: "t"})
			Expect(err).To(MatchError(ContainSubstring("broker")))
		})

		It("requires a topic", func() {
			_, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}})
			Expect(err).To(MatchError(ContainSubstring("topic")))
		})

		It("does not hold single events back for a batch", func() {
			w := newWriter([]string{"localhost:9092"}, Config{Topic: "weave.items"})
			Expect(w.BatchTimeout).To(Equal(DefaultBatchTimeout))
			Expect(w.BatchSize).To(Equal(1))
			Expect(w.WriteTimeout).To(Equal(DefaultWriteTimeout))

			w = newWriter([]string{"localhost:9092"}, Config{Topic: "weave.items", BatchTimeout: time.Millisecond})
			Expect(w.BatchTimeout).To(Equal(time.Millisecond))
		})

		It("creates a publisher without connecting", func() {
			p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "weave.items"})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Close()).To(Succeed())
		})
	})
})
