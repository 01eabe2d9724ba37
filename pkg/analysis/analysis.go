// Package analysis derives summaries, topics, titles, embeddings and
// connection explanations for notes from AI providers.
package analysis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/embeddings"
)

// Result is the metadata extracted from a note.
type Result struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

// Analyzer is the AI collaborator of the item processor.
type Analyzer interface {
	// Analyze extracts a summary, topics and a suggested title from text.
	Analyze(ctx context.Context, text string) (*Result, error)

	// Embed returns the embedding of text, or nil when embeddings are not
	// configured.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Explain describes in one sentence how two notes relate.
	Explain(ctx context.Context, a, b string) (string, error)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Call performs the LLM inference used by Analyze and Explain.
	Call CallFunc

	// Provider names the provider behind Call in errors.
	Provider string

	// Embedder is optional. Without it Embed returns no embedding and
	// similarity falls back to topic overlap.
	Embedder embeddings.Embedder

	Logger *zap.Logger
}

// Service implements Analyzer over an LLM call and an embedder.
type Service struct {
	call     CallFunc
	provider string
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewService creates an analysis service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		call:     cfg.Call,
		provider: cfg.Provider,
		embedder: cfg.Embedder,
		logger:   logger,
	}
}

// Analyze extracts metadata from text.
func (s *Service) Analyze(ctx context.Context, text string) (*Result, error) {
	response, err := s.call(ctx, buildAnalyzePrompt(text))
	if err != nil {
		return nil, err
	}

	result, err := parseAnalysis(response)
	if err != nil {
		return nil, badResponse(s.provider, err)
	}

	s.logger.Debug("analyzed note",
		zap.Int("topics", len(result.Topics)),
		zap.Int("summary_len", len(result.Summary)),
	)

	return result, nil
}

// Embed returns the embedding of text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, nil
	}
	return s.embedder.Embed(ctx, text)
}

// Explain describes how two notes relate.
func (s *Service) Explain(ctx context.Context, a, b string) (string, error) {
	response, err := s.call(ctx, buildExplainPrompt(a, b))
	if err != nil {
		return "", err
	}
	return parseExplanation(response), nil
}

// Close releases the embedder.
func (s *Service) Close() error {
	if s.embedder == nil {
		return nil
	}
	return s.embedder.Close()
}

// Describe builds the compact text used for embeddings and explanations:
// title, summary and joined topics, blanks skipped.
func Describe(title, summary string, topics []string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{title, summary, strings.Join(topics, ", ")} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

var _ Analyzer = (*Service)(nil)
