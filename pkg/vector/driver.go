// Package vector provides interfaces and implementations for the optional
// vector index that mirrors the embeddings of ready items.
package vector

import "context"

// Document is the indexed embedding of one item.
type Document struct {
	// ID is the item ID.
	ID string

	// OwnerID is the owner of the item, kept so query results can be
	// filtered to a single owner.
	OwnerID string

	// Embedding is the vector representation of the item's enriched text.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// FilterOwner keeps the results that belong to ownerID.
func FilterOwner(results []QueryResult, ownerID string) []QueryResult {
	var out []QueryResult
	for _, r := range results {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out
}
