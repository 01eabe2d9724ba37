// Package storage
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/weave/pkg/notes"
)

// Driver defines the interface for persisting and retrieving items and
// their connections in a storage backend.
//
// Every method commits independently: the item processor issues a sequence
// of writes and relies on the persisted step marker, not on transactions,
// to recover from partial failure.
type Driver interface {
	// CreateItem inserts a new item.
	CreateItem(ctx context.Context, item *notes.Item) error

	// GetItem retrieves an item by its ID. Returns NotFoundError when the
	// item does not exist.
	GetItem(ctx context.Context, id string) (*notes.Item, error)

	// UpdateItem applies the non-nil fields of patch to the item.
	UpdateItem(ctx context.Context, id string, patch ItemPatch) error

	// ClaimItem atomically takes the processing lease of an item. It
	// succeeds only when no unexpired lease is held, and returns false
	// without error when another run holds the lease.
	ClaimItem(ctx context.Context, id, token string, now time.Time, ttl time.Duration) (bool, error)

	// ListItems returns every item of the owner, oldest first.
	ListItems(ctx context.Context, ownerID string) ([]*notes.Item, error)

	// ListPending returns the owner's items that need processing, oldest
	// first: error items, and ready or processing items without a summary.
	ListPending(ctx context.Context, ownerID string) ([]*notes.Item, error)

	// ListCandidates returns the owner's ready items other than excludeID.
	ListCandidates(ctx context.Context, ownerID, excludeID string) ([]*notes.Item, error)

	// MarkItems sets the status and status message of many items at once.
	// Leases are left untouched so a run in flight keeps its claim.
	MarkItems(ctx context.Context, ids []string, status notes.Status, message string) error

	// UpsertConnection creates the connection for its (low, high) pair, or
	// overwrites the similarity, explanation and method of the existing one.
	UpsertConnection(ctx context.Context, conn *notes.Connection) error

	// ListConnections returns the connections touching an item, strongest
	// first.
	ListConnections(ctx context.Context, itemID string) ([]*notes.Connection, error)

	// Close closes the store and releases any resources.
	Close() error
}

// ItemPatch is a partial update of an item. Nil fields are left untouched.
type ItemPatch struct {
	Title         *string
	Summary       *string
	Topics        *[]string
	Embedding     *[]float32
	Status        *notes.Status
	StatusMessage *string
	Step          *notes.Step

	// ReleaseLease clears the lease token and expiry.
	ReleaseLease bool
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Title == nil && p.Summary == nil && p.Topics == nil &&
		p.Embedding == nil && p.Status == nil && p.StatusMessage == nil &&
		p.Step == nil && !p.ReleaseLease
}

// Apply writes the patch onto item.
func (p ItemPatch) Apply(item *notes.Item) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Summary != nil {
		item.Summary = *p.Summary
	}
	if p.Topics != nil {
		item.Topics = notes.CleanList(*p.Topics)
	}
	if p.Embedding != nil {
		item.Embedding = notes.NormalizeEmbedding(*p.Embedding)
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.StatusMessage != nil {
		item.StatusMessage = *p.StatusMessage
	}
	if p.Step != nil {
		item.Step = *p.Step
	}
	if p.ReleaseLease {
		item.LeaseToken = ""
		item.LeaseExpiresAt = time.Time{}
	}
}

// IsPending reports whether an item needs a processing run.
func IsPending(item *notes.Item) bool {
	switch item.Status {
	case notes.StatusError:
		return true
	case notes.StatusReady, notes.StatusProcessing:
		return item.Summary == ""
	default:
		return false
	}
}
