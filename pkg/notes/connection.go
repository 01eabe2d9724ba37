package notes

import (
	"time"

	"github.com/google/uuid"
)

// Method names the similarity tier that produced a connection score.
type Method string

const (
	// MethodEmbedding is cosine similarity over embeddings.
	MethodEmbedding Method = "embedding"

	// MethodTopics is the topic overlap fallback.
	MethodTopics Method = "topics"
)

// Connection is an undirected, weighted edge between two ready items of
// the same owner. LowID always sorts before HighID.
type Connection struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	LowID       string    `json:"low_id"`
	HighID      string    `json:"high_id"`
	Similarity  float64   `json:"similarity"`
	Explanation string    `json:"explanation"`
	Method      Method    `json:"method"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CanonicalPair orders two item IDs lexicographically.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// NewConnection builds a connection between a and b in canonical order.
func NewConnection(ownerID, a, b string, similarity float64, explanation string, method Method) *Connection {
	low, high := CanonicalPair(a, b)
	now := time.Now().UTC()
	return &Connection{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		LowID:       low,
		HighID:      high,
		Similarity:  similarity,
		Explanation: explanation,
		Method:      method,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Other returns the endpoint of c that is not itemID.
func (c *Connection) Other(itemID string) string {
	if c.LowID == itemID {
		return c.HighID
	}
	return c.LowID
}

// Key returns the uniqueness key of the pair.
func (c *Connection) Key() string {
	return c.LowID + "|" + c.HighID
}
