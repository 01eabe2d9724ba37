package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/weave/pkg/vector"
)

// MockVectorDriver is a test vector driver keyed by document ID.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents map[string]vector.Document
	deleted   []string

	// Results is returned by Query, truncated to topK.
	Results []vector.QueryResult

	// FailAdd causes Add to return this error.
	FailAdd error
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make(map[string]vector.Document),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAdd != nil {
		return m.FailAdd
	}
	for _, d := range docs {
		m.documents[d.ID] = d
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Results) < topK {
		return m.Results, nil
	}
	return m.Results[:topK], nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []vector.Document
	for _, id := range ids {
		if d, ok := m.documents[id]; ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.documents, id)
	}
	m.deleted = append(m.deleted, ids...)
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Document returns the stored document for id.
func (m *MockVectorDriver) Document(id string) (vector.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	return d, ok
}

// Deleted returns every ID passed to Delete.
func (m *MockVectorDriver) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

var _ vector.Driver = (*MockVectorDriver)(nil)
