// Package weavecmder is the weave root command.
package weavecmder

import (
	"github.com/spf13/cobra"

	addcmder "github.com/papercomputeco/weave/cmd/weave/add"
	authcmder "github.com/papercomputeco/weave/cmd/weave/auth"
	configcmder "github.com/papercomputeco/weave/cmd/weave/config"
	initcmder "github.com/papercomputeco/weave/cmd/weave/init"
	pendingcmder "github.com/papercomputeco/weave/cmd/weave/pending"
	processcmder "github.com/papercomputeco/weave/cmd/weave/process"
	servecmder "github.com/papercomputeco/weave/cmd/weave/serve"
	showcmder "github.com/papercomputeco/weave/cmd/weave/show"
	"github.com/papercomputeco/weave/cmd/weave/sqlitepath"
	versioncmder "github.com/papercomputeco/weave/cmd/version"
)

const weaveLongDesc string = `Weave summarizes saved notes, tags their topics and connects each
note to the related notes of the same owner.

Run the server or work from the command line:
  weave init                  Create a local .weave/ directory
  weave serve                 Run the API and MCP server
  weave add <content>         Save a note
  weave process <id>          Enrich one note
  weave pending               Enrich every pending note of an owner
  weave show <id>             Show a note and its connections
  weave auth <provider>       Store an analysis provider API key`

const weaveShortDesc string = "Weave - note enrichment and connections"

func NewWeaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "weave",
		Short:        weaveShortDesc,
		Long:         weaveLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .weave/ directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(processcmder.NewProcessCmd())
	cmd.AddCommand(pendingcmder.NewPendingCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(sqlitepath.NewSQLitePathCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
