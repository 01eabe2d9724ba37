// Package sqlstore provides a database-agnostic storage.Driver over
// database/sql. Queries are built with ent's dialect SQL builders, so the
// same driver serves SQLite and PostgreSQL and is embedded by the specific
// drivers in pkg/storage/sqlite and pkg/storage/postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/storage"
)

// Driver provides storage operations over a *sql.DB for one SQL dialect.
type Driver struct {
	db      *sql.DB
	dialect string
}

// New wraps an open database for the given ent dialect name
// (dialect.SQLite or dialect.Postgres). Call Migrate before use.
func New(db *sql.DB, dialectName string) *Driver {
	return &Driver{
		db:      db,
		dialect: dialectName,
	}
}

// DB returns the underlying database handle.
func (d *Driver) DB() *sql.DB {
	return d.db
}

func (d *Driver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.dialect)
}

// CreateItem inserts a new item.
func (d *Driver) CreateItem(ctx context.Context, item *notes.Item) error {
	if item == nil {
		return storage.ErrNilItem
	}

	topics, err := encodeList(item.Topics)
	if err != nil {
		return err
	}
	tags, err := encodeList(item.Tags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt := item.CreatedAt.UTC()
	if item.CreatedAt.IsZero() {
		createdAt = now
	}

	query, args := d.builder().Insert(itemsTable).
		Columns(itemColumns...).
		Values(
			item.ID,
			item.OwnerID,
			string(item.Kind),
			item.Content,
			item.SourceURL,
			item.Title,
			item.Summary,
			topics,
			tags,
			encodeEmbedding(item.Embedding),
			string(item.Status),
			item.StatusMessage,
			string(item.Step),
			item.LeaseToken,
			leaseMillis(item.LeaseExpiresAt),
			createdAt,
			now,
		).
		Query()

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("could not execute item creation: %w", err)
	}

	return nil
}

// GetItem retrieves an item by its ID.
func (d *Driver) GetItem(ctx context.Context, id string) (*notes.Item, error) {
	query, args := d.selectItems(entsql.EQ("id", id)).Query()

	items, err := d.queryItems(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if len(items) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}

	return items[0], nil
}

// UpdateItem applies the non-nil fields of patch to the item.
func (d *Driver) UpdateItem(ctx context.Context, id string, patch storage.ItemPatch) error {
	update := d.builder().Update(itemsTable).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))

	if patch.Title != nil {
		update.Set("title", *patch.Title)
	}
	if patch.Summary != nil {
		update.Set("summary", *patch.Summary)
	}
	if patch.Topics != nil {
		topics, err := encodeList(*patch.Topics)
		if err != nil {
			return err
		}
		update.Set("topics", topics)
	}
	if patch.Embedding != nil {
		emb := notes.NormalizeEmbedding(*patch.Embedding)
		if emb == nil {
			update.SetNull("embedding")
		} else {
			update.Set("embedding", encodeEmbedding(emb))
		}
	}
	if patch.Status != nil {
		update.Set("status", string(*patch.Status))
	}
	if patch.StatusMessage != nil {
		update.Set("status_message", *patch.StatusMessage)
	}
	if patch.Step != nil {
		update.Set("step", string(*patch.Step))
	}
	if patch.ReleaseLease {
		update.Set("lease_token", "").Set("lease_expires_at", int64(0))
	}

	query, args := update.Query()
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("could not update item: %w", err)
	}

	return requireRow(res, id)
}

// ClaimItem takes the lease with a conditional update that only matches
// rows without an unexpired lease.
func (d *Driver) ClaimItem(ctx context.Context, id, token string, now time.Time, ttl time.Duration) (bool, error) {
	query, args := d.builder().Update(itemsTable).
		Set("lease_token", token).
		Set("lease_expires_at", leaseMillis(now.Add(ttl))).
		Set("updated_at", now.UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.Or(
				entsql.EQ("lease_token", ""),
				entsql.LTE("lease_expires_at", leaseMillis(now)),
			),
		)).
		Query()

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("could not claim item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not read claim result: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	// Distinguish a held lease from a missing item.
	if _, err := d.GetItem(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ListItems returns every item of the owner, oldest first.
func (d *Driver) ListItems(ctx context.Context, ownerID string) ([]*notes.Item, error) {
	query, args := d.selectItems(entsql.EQ("owner_id", ownerID)).Query()

	items, err := d.queryItems(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// ListPending returns the owner's items that need a processing run.
func (d *Driver) ListPending(ctx context.Context, ownerID string) ([]*notes.Item, error) {
	query, args := d.selectItems(entsql.And(
		entsql.EQ("owner_id", ownerID),
		entsql.Or(
			entsql.EQ("status", string(notes.StatusError)),
			entsql.And(
				entsql.In("status", string(notes.StatusReady), string(notes.StatusProcessing)),
				entsql.EQ("summary", ""),
			),
		),
	)).Query()

	items, err := d.queryItems(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	return items, nil
}

// ListCandidates returns the owner's ready items except excludeID.
func (d *Driver) ListCandidates(ctx context.Context, ownerID, excludeID string) ([]*notes.Item, error) {
	query, args := d.selectItems(entsql.And(
		entsql.EQ("owner_id", ownerID),
		entsql.EQ("status", string(notes.StatusReady)),
		entsql.NEQ("id", excludeID),
	)).Query()

	items, err := d.queryItems(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return items, nil
}

// MarkItems sets status and message on many items.
func (d *Driver) MarkItems(ctx context.Context, ids []string, status notes.Status, message string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query, qargs := d.builder().Update(itemsTable).
		Set("status", string(status)).
		Set("status_message", message).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.In("id", args...)).
		Query()

	if _, err := d.db.ExecContext(ctx, query, qargs...); err != nil {
		return fmt.Errorf("could not mark items: %w", err)
	}
	return nil
}

// UpsertConnection inserts the connection or, on a (low_id, high_id)
// conflict, overwrites similarity, explanation and method.
func (d *Driver) UpsertConnection(ctx context.Context, conn *notes.Connection) error {
	if conn == nil {
		return storage.ErrNilItem
	}

	low, high := notes.CanonicalPair(conn.LowID, conn.HighID)
	now := time.Now().UTC()
	createdAt := conn.CreatedAt.UTC()
	if conn.CreatedAt.IsZero() {
		createdAt = now
	}

	query, args := d.builder().Insert(connectionsTable).
		Columns(connectionColumns...).
		Values(
			conn.ID,
			conn.OwnerID,
			low,
			high,
			conn.Similarity,
			conn.Explanation,
			string(conn.Method),
			createdAt,
			now,
		).
		OnConflict(
			entsql.ConflictColumns("low_id", "high_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("similarity")
				u.SetExcluded("explanation")
				u.SetExcluded("method")
				u.SetExcluded("updated_at")
			}),
		).
		Query()

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("could not upsert connection: %w", err)
	}
	return nil
}

// ListConnections returns the connections touching itemID, strongest first.
func (d *Driver) ListConnections(ctx context.Context, itemID string) ([]*notes.Connection, error) {
	b := d.builder()
	query, args := b.Select(connectionColumns...).
		From(b.Table(connectionsTable)).
		Where(entsql.Or(
			entsql.EQ("low_id", itemID),
			entsql.EQ("high_id", itemID),
		)).
		OrderBy(entsql.Desc("similarity"), entsql.Asc("low_id"), entsql.Asc("high_id")).
		Query()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var result []*notes.Connection
	for rows.Next() {
		var (
			c      notes.Connection
			method string
		)
		if err := rows.Scan(
			&c.ID,
			&c.OwnerID,
			&c.LowID,
			&c.HighID,
			&c.Similarity,
			&c.Explanation,
			&method,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		c.Method = notes.Method(method)
		result = append(result, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connections: %w", err)
	}

	return result, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) selectItems(where *entsql.Predicate) *entsql.Selector {
	b := d.builder()
	return b.Select(itemColumns...).
		From(b.Table(itemsTable)).
		Where(where).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))
}

func (d *Driver) queryItems(ctx context.Context, query string, args []any) ([]*notes.Item, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*notes.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}

	return result, nil
}

func scanItem(rows *sql.Rows) (*notes.Item, error) {
	var (
		item                 notes.Item
		kind, status, step   string
		topicsJSON, tagsJSON string
		embedding            []byte
		leaseExpiresAt       int64
	)

	if err := rows.Scan(
		&item.ID,
		&item.OwnerID,
		&kind,
		&item.Content,
		&item.SourceURL,
		&item.Title,
		&item.Summary,
		&topicsJSON,
		&tagsJSON,
		&embedding,
		&status,
		&item.StatusMessage,
		&step,
		&item.LeaseToken,
		&leaseExpiresAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning item: %w", err)
	}

	item.Kind = notes.Kind(kind)
	item.Status = notes.Status(status)
	item.Step = notes.Step(step)

	var err error
	if item.Topics, err = decodeList(topicsJSON); err != nil {
		return nil, fmt.Errorf("decoding topics for item %s: %w", item.ID, err)
	}
	if item.Tags, err = decodeList(tagsJSON); err != nil {
		return nil, fmt.Errorf("decoding tags for item %s: %w", item.ID, err)
	}
	if item.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, fmt.Errorf("decoding embedding for item %s: %w", item.ID, err)
	}
	if leaseExpiresAt > 0 {
		item.LeaseExpiresAt = time.UnixMilli(leaseExpiresAt).UTC()
	}

	return &item, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not read update result: %w", err)
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

func leaseMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func encodeList(list []string) (string, error) {
	list = notes.CleanList(list)
	if list == nil {
		return "[]", nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(data), nil
}

func decodeList(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, err
	}
	return notes.CleanList(list), nil
}

// encodeEmbedding converts a float32 slice to a little-endian byte slice.
// An empty embedding is stored as NULL.
func encodeEmbedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding converts a little-endian byte slice back to a float32 slice.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, errors.New("invalid embedding blob length: must be divisible by 4")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

var _ storage.Driver = (*Driver)(nil)
