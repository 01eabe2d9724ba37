package processcmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/weave/api"
	processcmder "github.com/papercomputeco/weave/cmd/weave/process"
	"github.com/papercomputeco/weave/pkg/batch"
	"github.com/papercomputeco/weave/pkg/enrich"
	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage/inmemory"
	"github.com/papercomputeco/weave/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/weave/pkg/utils/test"
)

var _ = Describe("process command", func() {
	var (
		dbPath string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		tmp := GinkgoT().TempDir()
		GinkgoT().Setenv("HOME", tmp)
		origCwd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmp)).To(Succeed())
		DeferCleanup(func() {
			Expect(os.Chdir(origCwd)).To(Succeed())
		})

		dbPath = filepath.Join(tmp, "weave.db")
		out = &bytes.Buffer{}
	})

	run := func(args ...string) error {
		cmd := processcmder.NewProcessCmd()
		cmd.SetArgs(args)
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		return cmd.ExecuteContext(context.Background())
	}

	Context("locally", func() {
		var ready, other *notes.Item

		BeforeEach(func() {
			ctx := context.Background()
			driver, err := sqlite.NewSQLiteDriver(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()

			ready = notes.NewItem("alice", notes.KindText, "raft consensus", "", "Raft")
			ready.Status = notes.StatusReady
			ready.Summary = "Leader election"
			other = notes.NewItem("alice", notes.KindText, "paxos consensus", "", "Paxos")
			other.Status = notes.StatusReady
			other.Summary = "Paxos rounds"
			Expect(driver.CreateItem(ctx, ready)).To(Succeed())
			Expect(driver.CreateItem(ctx, other)).To(Succeed())
			Expect(driver.UpsertConnection(ctx, notes.NewConnection("alice", ready.ID, other.ID, 0.8, "both cover consensus", notes.MethodEmbedding))).To(Succeed())
		})

		It("prints a ready note and its connections without reprocessing", func() {
			Expect(run("--owner", "alice", "--sqlite", dbPath, "--embedding-provider", "none", ready.ID)).To(Succeed())

			Expect(out.String()).To(ContainSubstring("Raft"))
			Expect(out.String()).To(ContainSubstring("Leader election"))
			Expect(out.String()).To(ContainSubstring(other.ID))
			Expect(out.String()).To(ContainSubstring("both cover consensus"))
		})

		It("reports a missing note with its user-safe message", func() {
			err := run("--owner", "alice", "--sqlite", dbPath, "--embedding-provider", "none", "missing")
			Expect(err).To(MatchError(enrich.CategoryNotFound.Message()))
		})

		It("refuses notes of another owner", func() {
			err := run("--owner", "bob", "--sqlite", dbPath, "--embedding-provider", "none", ready.ID)
			Expect(err).To(MatchError(enrich.CategoryForbidden.Message()))
		})
	})

	Context("with --remote", func() {
		var (
			driver *inmemory.Driver
			ts     *httptest.Server
		)

		BeforeEach(func() {
			driver = inmemory.NewDriver()
			processor := enrich.NewProcessor(enrich.Config{Store: driver, Analyzer: testutils.NewMockAnalyzer()})
			server, err := api.NewServer(api.Config{
				Processor: processor,
				Batch:     batch.NewOrchestrator(batch.Config{Store: driver, Processor: processor, Delay: -1}),
			}, driver, nil)
			Expect(err).NotTo(HaveOccurred())
			ts = httptest.NewServer(server.Handler())
			DeferCleanup(ts.Close)
		})

		It("processes the note on the server and prints JSON", func() {
			item := notes.NewItem("alice", notes.KindText, "remote body to enrich", "", "")
			Expect(driver.CreateItem(context.Background(), item)).To(Succeed())

			Expect(run("--owner", "alice", "--remote", "--api-target", ts.URL, "--json", item.ID)).To(Succeed())

			var res enrich.Result
			Expect(json.Unmarshal(out.Bytes(), &res)).To(Succeed())
			Expect(res.OK).To(BeTrue())
			Expect(res.Status).To(Equal(notes.StatusReady))

			stored, err := driver.GetItem(context.Background(), item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(notes.StatusReady))
		})
	})
})
