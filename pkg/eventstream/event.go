// Package eventstream defines the events emitted when an item finishes
// enrichment and the publishers that deliver them.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/weave/pkg/notes"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeItemEnriched is emitted after an item becomes ready.
	EventTypeItemEnriched = "weave.item.enriched"
)

// ItemEnrichedEvent is a transport-neutral event payload for a ready item.
type ItemEnrichedEvent struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	EventID       string           `json:"event_id"`
	EmittedAt     time.Time        `json:"emitted_at"`
	Item          ItemMeta         `json:"item"`
	Connections   []ConnectionMeta `json:"connections"`
}

// ItemMeta carries the enriched fields of the item. Content and the
// embedding are left out.
type ItemMeta struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Kind         notes.Kind `json:"kind"`
	Title        string     `json:"title,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Topics       []string   `json:"topics,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	SourceURL    string     `json:"source_url,omitempty"`
	HasEmbedding bool       `json:"has_embedding"`
}

// ConnectionMeta is one connection of the item, seen from the item.
type ConnectionMeta struct {
	ItemID     string       `json:"item_id"`
	Similarity float64      `json:"similarity"`
	Method     notes.Method `json:"method"`
}

// NewItemEnrichedEvent builds the event for item and its connections.
func NewItemEnrichedEvent(item *notes.Item, conns []*notes.Connection, now time.Time) *ItemEnrichedEvent {
	event := &ItemEnrichedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeItemEnriched,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		Item: ItemMeta{
			ID:           item.ID,
			OwnerID:      item.OwnerID,
			Kind:         item.Kind,
			Title:        item.Title,
			Summary:      item.Summary,
			Topics:       item.Topics,
			Tags:         item.Tags,
			SourceURL:    item.SourceURL,
			HasEmbedding: item.HasEmbedding(),
		},
		Connections: make([]ConnectionMeta, 0, len(conns)),
	}

	for _, c := range conns {
		event.Connections = append(event.Connections, ConnectionMeta{
			ItemID:     c.Other(item.ID),
			Similarity: c.Similarity,
			Method:     c.Method,
		})
	}

	return event
}
