package servecmder_test

import (
	"bytes"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	servecmder "github.com/papercomputeco/weave/cmd/weave/serve"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the server flags with their defaults", func() {
		cmd := servecmder.NewServeCmd()

		listen := cmd.Flags().Lookup("listen")
		Expect(listen).NotTo(BeNil())
		Expect(listen.Shorthand).To(Equal("l"))
		Expect(listen.DefValue).To(Equal(":8081"))

		workers := cmd.Flags().Lookup("workers")
		Expect(workers).NotTo(BeNil())
		Expect(workers.DefValue).To(Equal("2"))

		for _, name := range []string{"storage", "sqlite", "postgres-dsn", "analysis-provider", "events-provider", "events-brokers", "log-file"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("rejects positional arguments", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("fails before listening when the stack cannot be built", func() {
		tmp := GinkgoT().TempDir()
		GinkgoT().Setenv("HOME", tmp)
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmp)).To(Succeed())
		DeferCleanup(func() { Expect(os.Chdir(origDir)).To(Succeed()) })

		cmd := servecmder.NewServeCmd()
		cmd.SetArgs([]string{"--storage", "memory", "--analysis-provider", "mystery"})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetOut(&bytes.Buffer{})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("unsupported provider")))
	})
})
