package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/weave/pkg/eventstream"
	"github.com/papercomputeco/weave/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("returns ErrNilItemEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishItem(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilItemEvent))
	})

	It("succeeds for non-nil events", func() {
		p := nop.NewPublisher()
		Expect(p.PublishItem(context.Background(), &eventstream.ItemEnrichedEvent{})).To(Succeed())
	})

	It("closes successfully", func() {
		Expect(nop.NewPublisher().Close()).To(Succeed())
	})
})
