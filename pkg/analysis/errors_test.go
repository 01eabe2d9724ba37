package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/weave/pkg/analysis"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }

var _ = Describe("errors", func() {
	DescribeTable("FromStatus",
		func(status int, kind analysis.Kind) {
			err := analysis.FromStatus("openai", status, "body")
			Expect(err.Kind).To(Equal(kind))
			Expect(err.StatusCode).To(Equal(status))
			Expect(err.Error()).To(ContainSubstring(fmt.Sprintf("status %d", status)))
		},
		Entry("unauthorized", 401, analysis.KindAuth),
		Entry("forbidden", 403, analysis.KindAuth),
		Entry("rate limited", 429, analysis.KindQuota),
		Entry("no such model", 404, analysis.KindModelUnavailable),
		Entry("unavailable", 503, analysis.KindModelUnavailable),
		Entry("overloaded", 529, analysis.KindModelUnavailable),
		Entry("gateway timeout", 504, analysis.KindTimeout),
		Entry("server error", 500, analysis.KindUnknown),
	)

	It("tags deadline errors as timeouts", func() {
		err := analysis.FromTransport("ollama", &url.Error{Op: "Post", URL: "http://x", Err: context.DeadlineExceeded})
		Expect(err.Kind).To(Equal(analysis.KindTimeout))
	})

	It("tags net timeouts as timeouts", func() {
		err := analysis.FromTransport("ollama", &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}})
		Expect(err.Kind).To(Equal(analysis.KindTimeout))
	})

	It("tags other transport errors as network", func() {
		err := analysis.FromTransport("ollama", errors.New("dial tcp: connection refused"))
		Expect(err.Kind).To(Equal(analysis.KindNetwork))
	})

	It("unwraps to the cause", func() {
		cause := errors.New("boom")
		err := analysis.FromTransport("openai", cause)
		Expect(errors.Is(err, cause)).To(BeTrue())

		var tagged *analysis.Error
		Expect(errors.As(fmt.Errorf("wrapped: %w", err), &tagged)).To(BeTrue())
		Expect(tagged.Provider).To(Equal("openai"))
	})
})
