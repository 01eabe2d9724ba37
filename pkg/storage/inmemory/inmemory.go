// Package inmemory provides a map-backed storage driver for tests and
// ephemeral servers.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex for locking the item and connection maps
	mu sync.RWMutex

	// items is keyed by item ID
	items map[string]*notes.Item

	// connections is keyed by the canonical "low|high" pair
	connections map[string]*notes.Connection
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		items:       make(map[string]*notes.Item),
		connections: make(map[string]*notes.Connection),
	}
}

// CreateItem stores a copy of item.
func (d *Driver) CreateItem(_ context.Context, item *notes.Item) error {
	if item == nil {
		return storage.ErrNilItem
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := item.Clone()
	c.Topics = notes.CleanList(c.Topics)
	c.Tags = notes.CleanList(c.Tags)
	c.Embedding = notes.NormalizeEmbedding(c.Embedding)
	d.items[item.ID] = c
	return nil
}

// GetItem returns a copy of the item with the given ID.
func (d *Driver) GetItem(_ context.Context, id string) (*notes.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	item, ok := d.items[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return item.Clone(), nil
}

// UpdateItem applies patch to the stored item.
func (d *Driver) UpdateItem(_ context.Context, id string, patch storage.ItemPatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	item, ok := d.items[id]
	if !ok {
		return storage.NotFoundError{ID: id}
	}

	patch.Apply(item)
	item.UpdatedAt = time.Now().UTC()
	return nil
}

// ClaimItem takes the lease when no unexpired lease is held.
func (d *Driver) ClaimItem(_ context.Context, id, token string, now time.Time, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	item, ok := d.items[id]
	if !ok {
		return false, storage.NotFoundError{ID: id}
	}

	if item.LeaseActive(now) {
		return false, nil
	}

	item.LeaseToken = token
	item.LeaseExpiresAt = now.Add(ttl)
	item.UpdatedAt = now.UTC()
	return true, nil
}

// ListItems returns the owner's items, oldest first.
func (d *Driver) ListItems(_ context.Context, ownerID string) ([]*notes.Item, error) {
	return d.filter(func(item *notes.Item) bool {
		return item.OwnerID == ownerID
	}), nil
}

// ListPending returns the owner's items that need a processing run.
func (d *Driver) ListPending(_ context.Context, ownerID string) ([]*notes.Item, error) {
	return d.filter(func(item *notes.Item) bool {
		return item.OwnerID == ownerID && storage.IsPending(item)
	}), nil
}

// ListCandidates returns the owner's ready items except excludeID.
func (d *Driver) ListCandidates(_ context.Context, ownerID, excludeID string) ([]*notes.Item, error) {
	return d.filter(func(item *notes.Item) bool {
		return item.OwnerID == ownerID && item.ID != excludeID && item.Status == notes.StatusReady
	}), nil
}

// MarkItems sets status and message on every listed item that exists.
func (d *Driver) MarkItems(_ context.Context, ids []string, status notes.Status, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range ids {
		item, ok := d.items[id]
		if !ok {
			continue
		}
		item.Status = status
		item.StatusMessage = message
		item.UpdatedAt = now
	}
	return nil
}

// UpsertConnection creates or overwrites the connection for its pair.
func (d *Driver) UpsertConnection(_ context.Context, conn *notes.Connection) error {
	if conn == nil {
		return storage.ErrNilItem
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	low, high := notes.CanonicalPair(conn.LowID, conn.HighID)
	key := low + "|" + high

	now := time.Now().UTC()
	if existing, ok := d.connections[key]; ok {
		existing.Similarity = conn.Similarity
		existing.Explanation = conn.Explanation
		existing.Method = conn.Method
		existing.UpdatedAt = now
		return nil
	}

	c := *conn
	c.LowID, c.HighID = low, high
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	d.connections[key] = &c
	return nil
}

// ListConnections returns the connections touching itemID, strongest first.
func (d *Driver) ListConnections(_ context.Context, itemID string) ([]*notes.Connection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*notes.Connection
	for _, conn := range d.connections {
		if conn.LowID == itemID || conn.HighID == itemID {
			c := *conn
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Similarity == result[j].Similarity {
			return result[i].Key() < result[j].Key()
		}
		return result[i].Similarity > result[j].Similarity
	})

	return result, nil
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) filter(keep func(*notes.Item) bool) []*notes.Item {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*notes.Item
	for _, item := range d.items {
		if keep(item) {
			result = append(result, item.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result
}

var _ storage.Driver = (*Driver)(nil)
