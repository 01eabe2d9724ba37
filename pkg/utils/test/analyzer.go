// Package testutils holds counting fakes shared by the package tests.
package testutils

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/weave/pkg/analysis"
)

// MockAnalyzer is a test analyzer that returns configured results and
// counts every call.
type MockAnalyzer struct {
	mu sync.Mutex

	// Results maps analysis input text to the result returned for it.
	// Unknown texts get a result derived from the text.
	Results map[string]*analysis.Result

	// Embeddings maps a key to the embedding returned when the embed text
	// contains it. Nothing matching returns no embedding.
	Embeddings map[string][]float32

	// AnalyzeErr, when set, decides the error returned for an input text.
	AnalyzeErr func(text string) error

	// EmbedErr and ExplainErr fail every Embed or Explain call.
	EmbedErr   error
	ExplainErr error

	// Explanation is returned by Explain. Defaults to a fixed sentence.
	Explanation string

	analyzeTexts []string
	embedCalls   int
	explainCalls int
}

// NewMockAnalyzer creates a mock analyzer with empty tables.
func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{
		Results:    make(map[string]*analysis.Result),
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockAnalyzer) Analyze(_ context.Context, text string) (*analysis.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.analyzeTexts = append(m.analyzeTexts, text)

	if m.AnalyzeErr != nil {
		if err := m.AnalyzeErr(text); err != nil {
			return nil, err
		}
	}

	if r, ok := m.Results[text]; ok {
		c := *r
		c.Topics = append([]string(nil), r.Topics...)
		return &c, nil
	}

	return &analysis.Result{
		Title:   "Mock title",
		Summary: "Summary of " + text,
		Topics:  []string{"mock-" + text},
	}, nil
}

func (m *MockAnalyzer) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.embedCalls++
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}

	if v, ok := m.Embeddings[text]; ok {
		return v, nil
	}

	keys := make([]string, 0, len(m.Embeddings))
	for k := range m.Embeddings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(text, k) {
			return m.Embeddings[k], nil
		}
	}

	return nil, nil
}

func (m *MockAnalyzer) Explain(_ context.Context, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.explainCalls++
	if m.ExplainErr != nil {
		return "", m.ExplainErr
	}
	if m.Explanation != "" {
		return m.Explanation, nil
	}
	return "Both notes are about the same thing.", nil
}

// AnalyzeCalls returns the number of Analyze calls.
func (m *MockAnalyzer) AnalyzeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.analyzeTexts)
}

// AnalyzedTexts returns the inputs of every Analyze call in order.
func (m *MockAnalyzer) AnalyzedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.analyzeTexts...)
}

// EmbedCalls returns the number of Embed calls.
func (m *MockAnalyzer) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

// ExplainCalls returns the number of Explain calls.
func (m *MockAnalyzer) ExplainCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.explainCalls
}

// TotalCalls returns the number of calls across all methods.
func (m *MockAnalyzer) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.analyzeTexts) + m.embedCalls + m.explainCalls
}

var _ analysis.Analyzer = (*MockAnalyzer)(nil)
