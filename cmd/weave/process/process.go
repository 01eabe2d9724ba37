// Package processcmder provides the process command that enriches one note.
package processcmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/weave/cmd/weave/stack"
	"github.com/papercomputeco/weave/pkg/cliui"
	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/enrich"
)

type processCommander struct {
	flags config.FlagSet

	owner         string
	apiTarget     string
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	provider      string
	model         string
	embedder      string

	remote bool
	json   bool
}

var processFlags = []string{
	config.FlagOwner,
	config.FlagAPITarget,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagAnalysisProv,
	config.FlagAnalysisModel,
	config.FlagEmbeddingProv,
}

const processLongDesc string = `Enrich one note.

The note is summarized, tagged with topics, embedded and connected to the
owner's related notes. A note that is already ready is returned as is; a
note held by another run is left alone.

With --remote the work runs on a weave server instead of locally.

Examples:
  weave process 5f0c...
  weave process --remote --api-target http://weave:8081 5f0c...`

const processShortDesc string = "Enrich one note"

func NewProcessCmd() *cobra.Command {
	cmder := &processCommander{flags: config.Flags}

	cmd := &cobra.Command{
		Use:   "process <item-id>",
		Short: processShortDesc,
		Long:  processLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
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
	cmd.Flags().BoolVarP(&cmder.remote, "remote", "r", false, "Process on a running weave server")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the result as JSON")

	return cmd
}

func (c *processCommander) run(cmd *cobra.Command, itemID string) error {
	v, configDir, err := stack.Resolve(cmd, processFlags)
	if err != nil {
		return err
	}
	owner, err := stack.Owner(v)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var processor enrich.ItemProcessor
	if c.remote {
		processor = stack.RemoteClient(v, owner)
	} else {
		log := stack.CommandLogger(cmd)
		defer log.Sync() //nolint:errcheck

		st, err := stack.New(ctx, stack.SettingsFromViper(v, configDir), log)
		if err != nil {
			return err
		}
		defer st.Close()
		processor = st.Processor
	}

	var res *enrich.Result
	err = cliui.Step(cmd.ErrOrStderr(), "Processing "+itemID, func() error {
		var perr error
		res, perr = processor.Process(ctx, itemID, owner)
		return perr
	})
	if err != nil {
		var perr *enrich.Error
		if errors.As(err, &perr) {
			return errors.New(perr.Message)
		}
		return err
	}

	if c.json {
		return writeJSON(out, res)
	}
	PrintResult(out, res)
	return nil
}

// PrintResult writes a human-readable rendition of res.
func PrintResult(w io.Writer, res *enrich.Result) {
	if res.AlreadyProcessing {
		fmt.Fprintf(w, "  %s %s\n", cliui.SkipMark, "Another run is processing this note; try again shortly.")
		return
	}

	title := res.Item.Title
	if title == "" {
		title = res.Item.ID
	}
	fmt.Fprintf(w, "  %s %s %s\n", cliui.SuccessMark, cliui.StatusBadge(res.Status), cliui.ValueStyle.Render(title))
	if res.Item.Summary != "" {
		fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render(res.Item.Summary))
	}

	if len(res.Connections) == 0 {
		fmt.Fprintf(w, "    %s\n", cliui.DimStyle.Render("No related notes yet."))
		return
	}

	fmt.Fprintf(w, "    %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%d connection(s):", len(res.Connections))))
	for _, conn := range res.Connections {
		fmt.Fprintf(w, "    - %s %s %s\n",
			conn.Other(res.Item.ID),
			cliui.DimStyle.Render(fmt.Sprintf("(%.2f, %s)", conn.Similarity, conn.Method)),
			conn.Explanation,
		)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
