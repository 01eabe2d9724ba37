// Package notes defines the item and connection model shared by the weave
// enrichment pipeline, the storage drivers and the API surfaces.
package notes

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the kind of note an item holds.
type Kind string

const (
	KindText Kind = "text"
	KindLink Kind = "link"
)

// Valid reports whether k is a known item kind.
func (k Kind) Valid() bool {
	return k == KindText || k == KindLink
}

// Item is a single note owned by one user.
type Item struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Kind      Kind   `json:"kind"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url,omitempty"`
	Title     string `json:"title,omitempty"`

	// Summary, Topics and Embedding are written only by the item processor.
	Summary   string    `json:"summary,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float32 `json:"-"`

	Status Status `json:"status"`

	// StatusMessage is a user-safe description of the last failure. Empty
	// unless Status is StatusError.
	StatusMessage string `json:"status_message,omitempty"`

	// Step is the last pipeline step completed by a processing run.
	Step Step `json:"step,omitempty"`

	// LeaseToken and LeaseExpiresAt hold the claim of the run currently
	// processing the item. An empty token means the item is unclaimed.
	LeaseToken     string    `json:"-"`
	LeaseExpiresAt time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewItem creates an item in the processing state, ready to be handed to
// the item processor.
func NewItem(ownerID string, kind Kind, content, sourceURL, title string) *Item {
	if !kind.Valid() {
		kind = KindText
	}

	now := time.Now().UTC()
	return &Item{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Kind:      kind,
		Content:   content,
		SourceURL: strings.TrimSpace(sourceURL),
		Title:     strings.TrimSpace(title),
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasAnalysis reports whether the AI-derived summary and topics are set.
func (i *Item) HasAnalysis() bool {
	return strings.TrimSpace(i.Summary) != "" && len(i.Topics) > 0
}

// HasEmbedding reports whether the item carries a usable embedding.
func (i *Item) HasEmbedding() bool {
	return len(i.Embedding) > 0
}

// LeaseActive reports whether a run holds an unexpired claim on the item.
func (i *Item) LeaseActive(now time.Time) bool {
	return i.LeaseToken != "" && now.Before(i.LeaseExpiresAt)
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}

	c := *i
	if i.Topics != nil {
		c.Topics = append([]string(nil), i.Topics...)
	}
	if i.Tags != nil {
		c.Tags = append([]string(nil), i.Tags...)
	}
	if i.Embedding != nil {
		c.Embedding = append([]float32(nil), i.Embedding...)
	}
	return &c
}

// CleanList trims every entry, drops blanks and removes case-insensitive
// duplicates while keeping the first spelling seen.
func CleanList(in []string) []string {
	if len(in) == 0 {
		return nil
	}

	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeEmbedding maps an empty vector to nil so that an embedding is
// either absent or non-empty.
func NormalizeEmbedding(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	return v
}
