package config_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/weave/pkg/config"
)

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("storage.driver")).To(Equal(defaults.Storage.Driver))
		Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
		Expect(v.GetString("analysis.model")).To(Equal(defaults.Analysis.Model))
		Expect(v.GetDuration("analysis.timeout").String()).To(Equal("30s"))
		Expect(v.GetFloat64("enrich.similarity_threshold")).To(Equal(0.3))
		Expect(v.GetInt("enrich.max_connections")).To(Equal(5))
	})

	It("reads config file values over defaults", func() {
		writeConfig(tmpDir, `[analysis]
provider = "anthropic"

[enrich]
batch_delay = "2s"
`)

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("analysis.provider")).To(Equal("anthropic"))
		Expect(v.GetDuration("enrich.batch_delay").Seconds()).To(Equal(2.0))
		Expect(v.GetString("api.listen")).To(Equal(":8081"))
	})

	It("env vars take precedence over config file values", func() {
		writeConfig(tmpDir, `[analysis]
provider = "anthropic"
`)

		GinkgoT().Setenv("WEAVE_ANALYSIS_PROVIDER", "openai")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("analysis.provider")).To(Equal("openai"))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bindflag-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		writeConfig(tmpDir, `[api]
listen = ":5555"
`)

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{"nonexistent", config.FlagOwner})

		Expect(v.GetString("api.listen")).To(Equal(":8081"))
	})

	It("AddStringFlag pulls name, shorthand, and description from FlagSet", func() {
		cmd := &cobra.Command{Use: "test"}
		var owner string
		config.AddStringFlag(cmd, config.Flags, config.FlagOwner, &owner)

		f := cmd.Flags().Lookup("owner")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("o"))
		Expect(f.Usage).To(Equal(config.Flags[config.FlagOwner].Description))
		Expect(f.DefValue).To(BeEmpty())
	})

	It("AddUintFlag takes its default from the config defaults", func() {
		cmd := &cobra.Command{Use: "test"}
		var workers uint
		config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &workers)

		f := cmd.Flags().Lookup("workers")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("2"))
		Expect(workers).To(Equal(uint(2)))
	})
})
