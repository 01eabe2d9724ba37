// Package ollama embeds item text with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/weave/pkg/analysis"
	"github.com/papercomputeco/weave/pkg/embeddings"
	"github.com/papercomputeco/weave/pkg/vector"
)

const (
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultBaseURL        = "http://localhost:11434"

	provider = "ollama"

	// maxErrorBody caps how much of a failed response is kept.
	maxErrorBody = 4096
)

// Embedder calls Ollama's /api/embed endpoint.
type Embedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// EmbedderConfig holds configuration for the Ollama embedder. Empty fields
// take the package defaults.
type EmbedderConfig struct {
	BaseURL string
	Model   string

	// HTTPClient defaults to a client with a 2 minute timeout; local
	// models can be slow to load on first use.
	HTTPClient *http.Client
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	e := &Embedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: cfg.HTTPClient,
	}
	if e.baseURL == "" {
		e.baseURL = DefaultBaseURL
	}
	if e.model == "" {
		e.model = DefaultEmbeddingModel
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return e, nil
}

// Embed returns the embedding of text. Failures wrap vector.ErrEmbedding
// together with a tagged *analysis.Error.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fail(&analysis.Error{Kind: analysis.KindUnknown, Provider: provider, Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fail(&analysis.Error{Kind: analysis.KindUnknown, Provider: provider, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fail(analysis.FromTransport(provider, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fail(analysis.FromStatus(provider, resp.StatusCode, string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fail(&analysis.Error{Kind: analysis.KindBadResponse, Provider: provider, Err: err})
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fail(&analysis.Error{
			Kind:     analysis.KindBadResponse,
			Provider: provider,
			Err:      errors.New("no embeddings returned"),
		})
	}

	return out.Embeddings[0], nil
}

func fail(err *analysis.Error) error {
	return fmt.Errorf("%w: %w", vector.ErrEmbedding, err)
}

func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
