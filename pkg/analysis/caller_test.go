package analysis_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/weave/pkg/analysis"
)

func kindOf(err error) analysis.Kind {
	var tagged *analysis.Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return ""
}

var _ = Describe("NewCaller", func() {
	var server *httptest.Server

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	serve := func(h http.HandlerFunc) string {
		server = httptest.NewServer(h)
		return server.URL
	}

	It("requires a key for hosted providers", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		_, err := analysis.NewCaller(analysis.CallerConfig{Provider: "openai"})
		Expect(err).To(MatchError(ContainSubstring("OPENAI_API_KEY")))
	})

	It("reads the key from the environment", func() {
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "env-key")
		base := serve(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Header.Get("x-api-key")).To(Equal("env-key"))
			_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{}"}]}`))
		})

		call, err := analysis.NewCaller(analysis.CallerConfig{Provider: "anthropic", BaseURL: base})
		Expect(err).NotTo(HaveOccurred())

		out, err := call(context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("{}"))
	})

	It("rejects unknown providers", func() {
		_, err := analysis.NewCaller(analysis.CallerConfig{Provider: "gemini", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported provider")))
	})

	It("returns the openai message content", func() {
		base := serve(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer k"))
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"summary\":\"s\"}"}}]}`))
		})

		call, err := analysis.NewCaller(analysis.CallerConfig{Provider: "openai", APIKey: "k", BaseURL: base})
		Expect(err).NotTo(HaveOccurred())

		out, err := call(context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`{"summary":"s"}`))
	})

	It("talks to ollama without a key", func() {
		base := serve(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/chat"))
			_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"},"done":true}`))
		})

		call, err := analysis.NewCaller(analysis.CallerConfig{Provider: "ollama", BaseURL: base})
		Expect(err).NotTo(HaveOccurred())

		out, err := call(context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("ok"))
	})

	DescribeTable("tags error statuses",
		func(status int, kind analysis.Kind) {
			base := serve(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			})

			call, err := analysis.NewCaller(analysis.CallerConfig{Provider: "openai", APIKey: "k", BaseURL: base})
			Expect(err).NotTo(HaveOccurred())

			_, err = call(context.Background(), "hi")
			Expect(kindOf(err)).To(Equal(kind))
		},
		Entry("quota", http.StatusTooManyRequests, analysis.KindQuota),
		Entry("auth", http.StatusUnauthorized, analysis.KindAuth),
		Entry("model", http.StatusNotFound, analysis.KindModelUnavailable),
	)

	It("tags slow responses as timeouts", func() {
		base := serve(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})

		call, err := analysis.NewCaller(analysis.CallerConfig{
			Provider: "ollama",
			BaseURL:  base,
			Timeout:  50 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = call(context.Background(), "hi")
		Expect(kindOf(err)).To(Equal(analysis.KindTimeout))
	})

	It("tags refused connections as network failures", func() {
		base := serve(func(http.ResponseWriter, *http.Request) {})
		server.Close()
		server = nil

		call, err := analysis.NewCaller(analysis.CallerConfig{Provider: "ollama", BaseURL: base})
		Expect(err).NotTo(HaveOccurred())

		_, err = call(context.Background(), "hi")
		Expect(kindOf(err)).To(Equal(analysis.KindNetwork))
	})

	It("tags undecodable bodies as bad responses", func() {
		base := serve(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})

		call, err := analysis.NewCaller(analysis.CallerConfig{Provider: "openai", APIKey: "k", BaseURL: base})
		Expect(err).NotTo(HaveOccurred())

		_, err = call(context.Background(), "hi")
		Expect(kindOf(err)).To(Equal(analysis.KindBadResponse))
	})
})
