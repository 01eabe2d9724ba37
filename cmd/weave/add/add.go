// Package addcmder provides the add command that saves a note.
package addcmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/weave/api"
	"github.com/papercomputeco/weave/cmd/weave/stack"
	"github.com/papercomputeco/weave/pkg/cliui"
	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/notes"
)

type addCommander struct {
	flags config.FlagSet

	owner     string
	apiTarget string
	sqlite    string
	storage   string

	kind      string
	sourceURL string
	title     string
	tags      []string
	process   bool
	remote    bool
}

var addFlags = []string{
	config.FlagOwner,
	config.FlagAPITarget,
	config.FlagSQLite,
	config.FlagStorageDriver,
}

const addLongDesc string = `Save a note.

The content is taken from the arguments, or read from stdin when the only
argument is "-". The note is saved in processing. Pass --process to enrich
it right away; otherwise "weave pending" picks it up.

With --remote the note is sent to a running weave server, which enriches
it in the background.

Examples:
  weave add "Raft elects a leader with randomized timeouts"
  weave add --kind link --url https://raft.github.io "Raft site"
  cat notes.md | weave add --title "Meeting notes" -`

const addShortDesc string = "Save a note"

func NewAddCmd() *cobra.Command {
	cmder := &addCommander{flags: config.Flags}

	cmd := &cobra.Command{
		Use:   "add [content|-]",
		Short: addShortDesc,
		Long:  addLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			v, configDir, err := stack.Resolve(cmd, addFlags)
			if err != nil {
				return err
			}
			owner, err := stack.Owner(v)
			if err != nil {
				return err
			}

			req := api.CreateItemRequest{
				Kind:      notes.Kind(cmder.kind),
				Content:   content,
				SourceURL: cmder.sourceURL,
				Title:     cmder.title,
				Tags:      cmder.tags,
			}
			if strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.SourceURL) == "" {
				return fmt.Errorf("content or --url is required")
			}
			if !req.Kind.Valid() {
				return fmt.Errorf("invalid kind %q: must be text or link", cmder.kind)
			}

			if cmder.remote {
				return cmder.runRemote(cmd.Context(), cmd.OutOrStdout(), v, owner, req)
			}
			return cmder.runLocal(cmd, v, configDir, owner, req)
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagOwner, &cmder.owner)
	config.AddStringFlag(cmd, cmder.flags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSQLite, &cmder.sqlite)
	config.AddStringFlag(cmd, cmder.flags, config.FlagStorageDriver, &cmder.storage)
	cmd.Flags().StringVarP(&cmder.kind, "kind", "k", string(notes.KindText), "Note kind: text or link")
	cmd.Flags().StringVar(&cmder.sourceURL, "url", "", "Source URL of the note")
	cmd.Flags().StringVarP(&cmder.title, "title", "t", "", "Title of the note")
	cmd.Flags().StringSliceVar(&cmder.tags, "tag", nil, "Tag the note (repeatable)")
	cmd.Flags().BoolVarP(&cmder.process, "process", "p", false, "Enrich the note right away")
	cmd.Flags().BoolVarP(&cmder.remote, "remote", "r", false, "Send the note to a running weave server")

	return cmd
}

func readContent(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func (c *addCommander) runRemote(ctx context.Context, out io.Writer, v *viper.Viper, owner string, req api.CreateItemRequest) error {
	resp, err := stack.RemoteClient(v, owner).CreateItem(ctx, req)
	if err != nil {
		return fmt.Errorf("saving note: %w", err)
	}

	fmt.Fprintf(out, "  %s Saved note %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(resp.Item.ID))
	if !resp.Queued {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("The server queue is full; run weave pending to enrich it."))
	}
	return nil
}

func (c *addCommander) runLocal(cmd *cobra.Command, v *viper.Viper, configDir, owner string, req api.CreateItemRequest) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := stack.CommandLogger(cmd)
	defer log.Sync() //nolint:errcheck

	settings := stack.SettingsFromViper(v, configDir)

	item := notes.NewItem(owner, req.Kind, req.Content, req.SourceURL, req.Title)
	item.Tags = notes.CleanList(req.Tags)

	if !c.process {
		store, err := stack.NewStore(ctx, settings, log)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("saving note: %w", err)
		}
		fmt.Fprintf(out, "  %s Saved note %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(item.ID))
		return nil
	}

	st, err := stack.New(ctx, settings, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Store.CreateItem(ctx, item); err != nil {
		return fmt.Errorf("saving note: %w", err)
	}
	fmt.Fprintf(out, "  %s Saved note %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(item.ID))

	return cliui.Step(out, "Enriching note", func() error {
		_, err := st.Processor.Process(ctx, item.ID, owner)
		return err
	})
}
