// Package pendingcmder provides the pending command that runs a batch over
// every note still missing analysis or previously failed.
package pendingcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/weave/cmd/weave/stack"
	"github.com/papercomputeco/weave/pkg/batch"
	"github.com/papercomputeco/weave/pkg/cliui"
	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/dotdir"
)

type pendingCommander struct {
	flags config.FlagSet

	owner         string
	apiTarget     string
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	provider      string
	model         string
	embedder      string
	delay         string

	remote bool
	server bool
	last   bool
	json   bool
}

var pendingFlags = []string{
	config.FlagOwner,
	config.FlagAPITarget,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagAnalysisProv,
	config.FlagAnalysisModel,
	config.FlagEmbeddingProv,
	config.FlagBatchDelay,
}

const pendingLongDesc string = `Process every pending note of an owner.

Pending notes are notes that failed earlier and notes without a summary.
They are processed one at a time, oldest first, with a pause between
items. The run stops early when the AI quota is exhausted, and the notes
it could not get to are marked failed so they are picked up again later.

By default everything runs locally. With --remote the pending notes are
selected from the local store and each one is processed by a weave server
sharing that store. With --server the whole batch runs on the server.

Every run is recorded in .weave/last_run.json; --last prints it.`

const pendingShortDesc string = "Process every pending note"

func NewPendingCmd() *cobra.Command {
	cmder := &pendingCommander{flags: config.Flags}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: pendingShortDesc,
		Long:  pendingLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagOwner, &cmder.owner)
	config.AddStringFlag(cmd, cmder.flags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, cmder.flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, cmder.flags, config.FlagAnalysisProv, &cmder.provider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagAnalysisModel, &cmder.model)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingProv, &cmder.embedder)
	config.AddStringFlag(cmd, cmder.flags, config.FlagBatchDelay, &cmder.delay)
	cmd.Flags().BoolVarP(&cmder.remote, "remote", "r", false, "Process each note on a running weave server")
	cmd.Flags().BoolVar(&cmder.server, "server", false, "Run the whole batch on a running weave server")
	cmd.Flags().BoolVar(&cmder.last, "last", false, "Print the report of the last run and exit")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the report as JSON")
	cmd.MarkFlagsMutuallyExclusive("remote", "server", "last")

	return cmd
}

func (c *pendingCommander) run(cmd *cobra.Command) error {
	v, configDir, err := stack.Resolve(cmd, pendingFlags)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ddm := dotdir.NewManager()

	if c.last {
		return c.printLast(out, ddm, configDir)
	}

	owner, err := stack.Owner(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *batch.Report
	err = cliui.Step(cmd.ErrOrStderr(), "Processing pending notes", func() error {
		var rerr error
		report, rerr = c.runBatch(ctx, cmd, v, configDir, owner)
		return rerr
	})
	if err != nil {
		return err
	}

	run := &dotdir.LastRun{
		OwnerID:    owner,
		Remote:     c.remote || c.server,
		FinishedAt: time.Now().UTC(),
		Report:     report,
	}
	if err := ddm.SaveLastRun(run, configDir); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s %s\n", cliui.SkipMark, cliui.DimStyle.Render("could not record the run: "+err.Error()))
	}

	if c.json {
		return writeJSON(out, report)
	}
	printReport(out, report)
	return nil
}

func (c *pendingCommander) runBatch(ctx context.Context, cmd *cobra.Command, v *viper.Viper, configDir, owner string) (*batch.Report, error) {
	if c.server {
		return stack.RemoteClient(v, owner).ProcessPending(ctx)
	}

	log := stack.CommandLogger(cmd)
	defer log.Sync() //nolint:errcheck

	settings := stack.SettingsFromViper(v, configDir)

	if c.remote {
		store, err := stack.NewStore(ctx, settings, log)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		orch := stack.NewOrchestrator(store, stack.RemoteClient(v, owner), settings, log)
		return orch.ProcessPending(ctx, owner)
	}

	st, err := stack.New(ctx, settings, log)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return st.Batch.ProcessPending(ctx, owner)
}

func (c *pendingCommander) printLast(out io.Writer, ddm *dotdir.Manager, configDir string) error {
	run, err := ddm.LoadLastRun(configDir)
	if err != nil {
		return err
	}
	if run == nil {
		return errors.New("no batch has run yet")
	}

	if c.json {
		return writeJSON(out, run)
	}

	where := "locally"
	if run.Remote {
		where = "on a server"
	}
	fmt.Fprintf(out, "  %s %s\n",
		cliui.KeyStyle.Render(run.OwnerID),
		cliui.DimStyle.Render(fmt.Sprintf("ran %s at %s", where, run.FinishedAt.Local().Format(time.DateTime))),
	)
	printReport(out, run.Report)
	return nil
}

func printReport(w io.Writer, report *batch.Report) {
	if report == nil {
		return
	}

	mark := cliui.SuccessMark
	if !report.Success {
		mark = cliui.FailMark
	}
	if report.Total == 0 {
		fmt.Fprintf(w, "  %s %s\n", mark, "Nothing to process.")
		return
	}
	fmt.Fprintf(w, "  %s %s\n", mark, report.Summary())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
