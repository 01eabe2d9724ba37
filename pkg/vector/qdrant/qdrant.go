// Package qdrant provides a vector.Driver backed by a Qdrant collection
// reached over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/vector"
)

const (
	// DefaultCollection is the collection used when none is configured.
	DefaultCollection = "weave_items"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	payloadItemID  = "item_id"
	payloadOwnerID = "owner_id"
)

// pointNamespace derives stable point UUIDs from item IDs.
var pointNamespace = uuid.MustParse("6f1c2a43-8d1e-4b7a-9f5c-2e0d3b4a7c61")

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is "host", "host:port" or a URL such as "https://host:6334".
	Target string

	// Collection defaults to DefaultCollection.
	Collection string

	// Dimensions is the size of the collection's vectors.
	Dimensions uint

	// APIKey defaults to the QDRANT_API_KEY environment variable.
	APIKey string
}

// Driver implements vector.Driver over a Qdrant collection.
type Driver struct {
	client     *qc.Client
	collection string
	dimensions uint
	logger     *zap.Logger
}

// NewDriver connects to Qdrant and creates the collection when missing.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, errors.New("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, useTLS, err := parseTarget(c.Target)
	if err != nil {
		return nil, err
	}

	apiKey := c.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("QDRANT_API_KEY")
	}

	collection := c.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := qc.NewClient(&qc.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %v", vector.ErrConnection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qc.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qc.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %s: %w", collection, err)
		}
	}

	logger.Info("qdrant vector driver initialized",
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("collection", collection),
		zap.Uint("dimensions", c.Dimensions),
		zap.Bool("created", !exists),
	)

	return &Driver{
		client:     client,
		collection: collection,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// Add upserts documents as points keyed by a UUID derived from the item ID.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qc.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if uint(len(doc.Embedding)) != d.dimensions {
			return fmt.Errorf("document %s: %w: got %d, index has %d",
				doc.ID, vector.ErrDimensions, len(doc.Embedding), d.dimensions)
		}

		points = append(points, &qc.PointStruct{
			Id:      qc.NewID(PointID(doc.ID)),
			Vectors: qc.NewVectors(doc.Embedding...),
			Payload: qc.NewValueMap(map[string]any{
				payloadItemID:  doc.ID,
				payloadOwnerID: doc.OwnerID,
			}),
		})
	}

	wait := true
	if _, err := d.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant",
		zap.Int("count", len(docs)),
	)

	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if uint(len(embedding)) != d.dimensions {
		return nil, fmt.Errorf("%w: got %d, index has %d", vector.ErrDimensions, len(embedding), d.dimensions)
	}

	limit := uint64(topK)
	points, err := d.client.Query(ctx, &qc.QueryPoints{
		CollectionName: d.collection,
		Query:          qc.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:      payload[payloadItemID].GetStringValue(),
				OwnerID: payload[payloadOwnerID].GetStringValue(),
			},
			Score: p.GetScore(),
		})
	}

	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	points, err := d.client.Get(ctx, &qc.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs(ids),
		WithPayload:    qc.NewWithPayload(true),
		WithVectors:    qc.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		docs = append(docs, vector.Document{
			ID:        payload[payloadItemID].GetStringValue(),
			OwnerID:   payload[payloadOwnerID].GetStringValue(),
			Embedding: p.GetVectors().GetVector().GetData(),
		})
	}

	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	wait := true
	if _, err := d.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         qc.NewPointsSelector(pointIDs(ids)...),
	}); err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant",
		zap.Int("count", len(ids)),
	)

	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

// PointID returns the Qdrant point UUID for an item ID.
func PointID(itemID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(itemID)).String()
}

func pointIDs(ids []string) []*qc.PointId {
	out := make([]*qc.PointId, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		pid := PointID(id)
		if seen[pid] {
			continue
		}
		seen[pid] = true
		out = append(out, qc.NewID(pid))
	}
	return out
}

// parseTarget splits a target into host, port and TLS flag.
func parseTarget(target string) (string, int, bool, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "localhost", DefaultPort, false, nil
	}

	useTLS := false
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant target %q: %w", target, err)
		}
		switch u.Scheme {
		case "https", "grpcs":
			useTLS = true
		case "http", "grpc":
		default:
			return "", 0, false, fmt.Errorf("invalid qdrant target %q: unsupported scheme %q", target, u.Scheme)
		}
		target = u.Host
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// no port
		if strings.Contains(err.Error(), "missing port") {
			return target, DefaultPort, useTLS, nil
		}
		return "", 0, false, fmt.Errorf("invalid qdrant target %q: %w", target, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q", portStr)
	}

	return host, port, useTLS, nil
}

var _ vector.Driver = (*Driver)(nil)
