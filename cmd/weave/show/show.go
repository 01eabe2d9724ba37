// Package showcmder provides the show command that prints a note with its
// analysis and connections.
package showcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/weave/cmd/weave/stack"
	"github.com/papercomputeco/weave/pkg/cliui"
	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage"
)

// itemReader is satisfied by storage drivers and the API client.
type itemReader interface {
	GetItem(ctx context.Context, id string) (*notes.Item, error)
	ListConnections(ctx context.Context, itemID string) ([]*notes.Connection, error)
}

type showCommander struct {
	flags config.FlagSet

	owner         string
	apiTarget     string
	storageDriver string
	sqlitePath    string
	postgresDSN   string

	remote bool
	raw    bool
	json   bool
}

var showFlags = []string{
	config.FlagOwner,
	config.FlagAPITarget,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
}

const showLongDesc string = `Show a note.

Prints the note's title, status, summary, topics and tags, followed by the
related notes it is connected to, strongest first.

Examples:
  weave show 5f0c...
  weave show --raw 5f0c... > note.md
  weave show --remote --json 5f0c...`

const showShortDesc string = "Show a note and its connections"

// View is the JSON form of a shown note.
type View struct {
	Item        *notes.Item         `json:"item"`
	Connections []*notes.Connection `json:"connections"`
	Titles      map[string]string   `json:"titles,omitempty"`
}

func NewShowCmd() *cobra.Command {
	cmder := &showCommander{flags: config.Flags}

	cmd := &cobra.Command{
		Use:   "show <item-id>",
		Short: showShortDesc,
		Long:  showLongDesc,
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
	cmd.Flags().BoolVarP(&cmder.remote, "remote", "r", false, "Read the note from a running weave server")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print markdown without terminal styling")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the note as JSON")
	cmd.MarkFlagsMutuallyExclusive("raw", "json")

	return cmd
}

func (c *showCommander) run(cmd *cobra.Command, itemID string) error {
	v, configDir, err := stack.Resolve(cmd, showFlags)
	if err != nil {
		return err
	}
	owner, err := stack.Owner(v)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	var reader itemReader
	if c.remote {
		reader = stack.RemoteClient(v, owner)
	} else {
		log := stack.CommandLogger(cmd)
		defer log.Sync() //nolint:errcheck

		store, err := stack.NewStore(ctx, stack.SettingsFromViper(v, configDir), log)
		if err != nil {
			return err
		}
		defer store.Close()
		reader = ownedReader{store: store, owner: owner}
	}

	view, err := load(ctx, reader, itemID)
	if err != nil {
		return err
	}

	return c.print(cmd.OutOrStdout(), view)
}

// load fetches the item, its connections and the titles of the connected
// items. Connected items that cannot be read keep their ID as title.
func load(ctx context.Context, reader itemReader, itemID string) (*View, error) {
	item, err := reader.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading note %s: %w", itemID, err)
	}

	conns, err := reader.ListConnections(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("loading connections of %s: %w", item.ID, err)
	}
	if conns == nil {
		conns = []*notes.Connection{}
	}

	titles := make(map[string]string, len(conns))
	for _, conn := range conns {
		other := conn.Other(item.ID)
		related, err := reader.GetItem(ctx, other)
		if err != nil || related.Title == "" {
			continue
		}
		titles[other] = related.Title
	}

	return &View{Item: item, Connections: conns, Titles: titles}, nil
}

func (c *showCommander) print(out io.Writer, view *View) error {
	if c.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	md := cliui.ItemMarkdown(view.Item, view.Connections, view.Titles)
	if c.raw {
		_, err := io.WriteString(out, md)
		return err
	}

	rendered, err := cliui.RenderMarkdown(md)
	if err != nil {
		// Raw markdown is still readable.
		rendered = md
	}
	_, err = io.WriteString(out, rendered)
	return err
}

// ownedReader hides items of other owners behind a not found error.
type ownedReader struct {
	store storage.Driver
	owner string
}

func (r ownedReader) GetItem(ctx context.Context, id string) (*notes.Item, error) {
	item, err := r.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != r.owner {
		return nil, storage.NotFoundError{ID: id}
	}
	return item, nil
}

func (r ownedReader) ListConnections(ctx context.Context, itemID string) ([]*notes.Connection, error) {
	return r.store.ListConnections(ctx, itemID)
}
