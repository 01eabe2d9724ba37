// Package vectorutils builds vector drivers from configuration.
package vectorutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/vector"
	"github.com/papercomputeco/weave/pkg/vector/qdrant"
	"github.com/papercomputeco/weave/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	// ProviderType is "sqlite-vec" or "qdrant". Empty disables the index.
	ProviderType string

	// TargetURL is the sqlite-vec database path or the Qdrant target.
	TargetURL string

	Dimensions uint
	Logger     *zap.Logger
}

// NewVectorDriver returns nil without error when no provider is configured.
func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch o.ProviderType {
	case "", "none":
		return nil, nil
	case "sqlite-vec", "sqlitevec":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.TargetURL,
			Dimensions: o.Dimensions,
		}, logger)
	case "qdrant":
		return qdrant.NewDriver(ctx, qdrant.Config{
			Target:     o.TargetURL,
			Dimensions: o.Dimensions,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
