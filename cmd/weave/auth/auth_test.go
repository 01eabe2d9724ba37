package authcmder_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/weave/cmd/weave/auth"
	"github.com/papercomputeco/weave/pkg/credentials"
)

var _ = Describe("auth command", func() {
	var (
		configDir string
		out       *bytes.Buffer
	)

	run := func(stdin string, args ...string) error {
		cmd := authcmder.NewAuthCmd()
		cmd.Flags().String("config-dir", "", "")
		cmd.SetIn(strings.NewReader(stdin))
		out = &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--config-dir", configDir))
		return cmd.Execute()
	}

	stored := func(provider string) string {
		mgr, err := credentials.NewManager(configDir)
		Expect(err).NotTo(HaveOccurred())
		key, err := mgr.GetKey(provider)
		Expect(err).NotTo(HaveOccurred())
		return key
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
	})

	It("stores a key piped on stdin", func() {
		Expect(run("  sk-ant-123  \n", "anthropic")).To(Succeed())
		Expect(stored("anthropic")).To(Equal("sk-ant-123"))
		Expect(out.String()).To(ContainSubstring("Stored"))
	})

	It("normalizes the provider name", func() {
		Expect(run("sk-1\n", "OpenAI")).To(Succeed())
		Expect(stored("openai")).To(Equal("sk-1"))
	})

	It("rejects unsupported providers", func() {
		err := run("key\n", "ollama")
		Expect(err).To(MatchError(ContainSubstring(`unsupported provider: "ollama"`)))
	})

	It("rejects an empty key", func() {
		Expect(run("\n", "openai")).To(MatchError("API key cannot be empty"))
	})

	It("errors without input", func() {
		Expect(run("", "openai")).To(MatchError("no input received on stdin"))
	})

	It("requires a provider", func() {
		Expect(run("")).To(MatchError(ContainSubstring("provider argument required")))
	})

	It("lists stored providers", func() {
		Expect(run("", "--list")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No stored credentials"))

		Expect(run("sk-1\n", "openai")).To(Succeed())
		Expect(run("", "--list")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("openai"))
		Expect(out.String()).To(ContainSubstring("OPENAI_API_KEY"))
	})

	It("removes a stored key", func() {
		Expect(run("sk-1\n", "openai")).To(Succeed())
		Expect(run("", "--remove", "openai")).To(Succeed())
		Expect(stored("openai")).To(BeEmpty())
	})

	It("rejects --list with --remove", func() {
		Expect(run("", "--list", "--remove", "openai")).NotTo(Succeed())
	})

	It("completes provider names", func() {
		cmd := authcmder.NewAuthCmd()
		names, directive := cmd.ValidArgsFunction(cmd, nil, "")
		Expect(names).To(ConsistOf("openai", "anthropic"))
		Expect(directive).To(Equal(cobra.ShellCompDirectiveNoFileComp))
	})
})
