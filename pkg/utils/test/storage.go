package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage"
)

// RecordingDriver wraps a storage.Driver and counts its writes.
type RecordingDriver struct {
	storage.Driver

	mu     sync.Mutex
	writes int

	// FailUpdate, when set, is consulted before every UpdateItem and its
	// error returned instead of writing.
	FailUpdate func(id string, patch storage.ItemPatch) error

	// FailUpsert causes UpsertConnection to return this error.
	FailUpsert error
}

// NewRecordingDriver wraps inner.
func NewRecordingDriver(inner storage.Driver) *RecordingDriver {
	return &RecordingDriver{Driver: inner}
}

// Writes returns the number of write calls made through the wrapper.
func (r *RecordingDriver) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Reset zeroes the write counter.
func (r *RecordingDriver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = 0
}

func (r *RecordingDriver) count() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
}

func (r *RecordingDriver) CreateItem(ctx context.Context, item *notes.Item) error {
	r.count()
	return r.Driver.CreateItem(ctx, item)
}

func (r *RecordingDriver) UpdateItem(ctx context.Context, id string, patch storage.ItemPatch) error {
	r.count()
	if r.FailUpdate != nil {
		if err := r.FailUpdate(id, patch); err != nil {
			return err
		}
	}
	return r.Driver.UpdateItem(ctx, id, patch)
}

func (r *RecordingDriver) ClaimItem(ctx context.Context, id, token string, now time.Time, ttl time.Duration) (bool, error) {
	r.count()
	return r.Driver.ClaimItem(ctx, id, token, now, ttl)
}

func (r *RecordingDriver) MarkItems(ctx context.Context, ids []string, status notes.Status, message string) error {
	r.count()
	return r.Driver.MarkItems(ctx, ids, status, message)
}

func (r *RecordingDriver) UpsertConnection(ctx context.Context, conn *notes.Connection) error {
	r.count()
	if r.FailUpsert != nil {
		return r.FailUpsert
	}
	return r.Driver.UpsertConnection(ctx, conn)
}

var _ storage.Driver = (*RecordingDriver)(nil)
