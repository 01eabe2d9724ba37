package cliui

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/weave/pkg/notes"
)

// ItemMarkdown describes item and its connections as markdown for
// RenderMarkdown. titles maps connected item IDs to their titles; missing
// entries fall back to the ID.
func ItemMarkdown(item *notes.Item, conns []*notes.Connection, titles map[string]string) string {
	var b strings.Builder

	title := item.Title
	if title == "" {
		title = "Untitled note"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "`%s` · %s · %s\n\n", item.ID, item.Kind, item.Status)

	if item.Status == notes.StatusError && item.StatusMessage != "" {
		fmt.Fprintf(&b, "> %s\n\n", item.StatusMessage)
	}

	if item.SourceURL != "" {
		fmt.Fprintf(&b, "<%s>\n\n", item.SourceURL)
	}

	if item.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(item.Summary)
		b.WriteString("\n\n")
	}

	if len(item.Topics) > 0 {
		b.WriteString("## Topics\n\n")
		for _, t := range item.Topics {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}

	if len(item.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(item.Tags, ", "))
	}

	if len(conns) > 0 {
		b.WriteString("## Connections\n\n")
		for _, c := range conns {
			other := c.Other(item.ID)
			name := titles[other]
			if name == "" {
				name = other
			}
			fmt.Fprintf(&b, "- **%s** (%.2f, %s): %s\n", name, c.Similarity, c.Method, c.Explanation)
		}
		b.WriteString("\n")
	}

	return b.String()
}
