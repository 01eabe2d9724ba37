// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/weave/pkg/embeddings"
	"github.com/papercomputeco/weave/pkg/embeddings/ollama"
	"github.com/papercomputeco/weave/pkg/embeddings/openai"
)

type NewEmbedderOpts struct {
	// ProviderType is "ollama" or "openai". Empty disables embeddings.
	ProviderType string
	TargetURL    string
	Model        string
	Dimensions   uint

	// APIKey is used by hosted providers. Empty falls back to the
	// provider's environment variable.
	APIKey string
}

// NewEmbedder returns nil without error when no provider is configured.
func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "", "none":
		return nil, nil
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case "openai":
		return openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
			APIKey:     o.APIKey,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
