package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/analysis"
	"github.com/papercomputeco/weave/pkg/notes"
	"github.com/papercomputeco/weave/pkg/similarity"
)

// FallbackExplanation is stored when no explanation could be generated.
const FallbackExplanation = "These notes share related topics."

func describe(item *notes.Item) string {
	return analysis.Describe(item.Title, item.Summary, item.Topics)
}

// explain asks the analyzer how two items relate, substituting the static
// fallback on any failure.
func (p *Processor) explain(ctx context.Context, a, b *notes.Item) string {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	text, err := p.analyzer.Explain(ctx, describe(a), describe(b))
	if err != nil {
		p.logger.Debug("explanation failed, using fallback",
			zap.String("item_id", a.ID),
			zap.String("other_id", b.ID),
			zap.Error(err),
		)
		return FallbackExplanation
	}
	if text = strings.TrimSpace(text); text == "" {
		return FallbackExplanation
	}
	return text
}

// materialize writes one connection per match keyed by the canonical pair.
// Upserts are idempotent, so a failed run can safely redo them.
func (p *Processor) materialize(ctx context.Context, item *notes.Item, matches []similarity.Match) error {
	for _, m := range matches {
		conn := notes.NewConnection(
			item.OwnerID,
			item.ID,
			m.Item.ID,
			m.Score,
			p.explain(ctx, item, m.Item),
			m.Method,
		)

		if err := p.store.UpsertConnection(ctx, conn); err != nil {
			return fmt.Errorf("upserting connection %s: %w", conn.Key(), err)
		}

		p.logger.Debug("connection materialized",
			zap.String("low_id", conn.LowID),
			zap.String("high_id", conn.HighID),
			zap.Float64("similarity", conn.Similarity),
			zap.String("method", string(conn.Method)),
		)
	}
	return nil
}
