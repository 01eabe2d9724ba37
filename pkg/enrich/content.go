package enrich

import (
	"strings"
	"unicode"

	"github.com/papercomputeco/weave/pkg/notes"
)

// minContentChars is the fewest non-whitespace characters worth analyzing.
const minContentChars = 3

// assembleContent builds the analysis input of an item. Link items join
// title, URL and user text with newlines, skipping blanks.
func assembleContent(item *notes.Item) string {
	if item.Kind != notes.KindLink {
		return strings.TrimSpace(item.Content)
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{item.Title, item.SourceURL, item.Content} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

func nonSpaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func sufficientContent(text string) bool {
	return nonSpaceLen(text) >= minContentChars
}

// chooseTitle keeps a meaningful user title on link items and otherwise
// prefers the AI title.
func chooseTitle(item *notes.Item, aiTitle string) string {
	existing := strings.TrimSpace(item.Title)
	if item.Kind == notes.KindLink && nonSpaceLen(existing) >= minContentChars {
		return existing
	}
	if t := strings.TrimSpace(aiTitle); t != "" {
		return t
	}
	return existing
}
