package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/domain"
)

// ItemResolution pairs an aggregated receipt line with its resolution
type ItemResolution struct {
	Item   domain.AggregatedItem   `json:"item"`
	Result domain.ResolutionResult `json:"result"`
}

// ProcessReceipt aggregates duplicate lines and resolves each distinct item.
// Output follows the order of first occurrence in lines.
func (n *Normalizer) ProcessReceipt(ctx context.Context, lines []domain.LineItem) []ItemResolution {
	items := AggregateLineItems(lines)
	if !AggregationPreserved(lines, items) {
		n.logger.Warn("receipt aggregation changed totals",
			zap.Int("lines", len(lines)),
			zap.Int("items", len(items)))
	}

	reqs := make([]domain.ResolveRequest, len(items))
	for i, item := range items {
		reqs[i] = domain.ResolveRequest{
			RawName:   item.RawName,
			StoreName: item.StoreName,
			Price:     item.UnitPrice,
		}
	}

	results := n.ResolveBatch(ctx, reqs, 0)

	out := make([]ItemResolution, len(items))
	for i := range items {
		out[i] = ItemResolution{Item: items[i], Result: results[i]}
	}
	n.logger.Info("receipt processed",
		zap.Int("lines", len(lines)),
		zap.Int("items", len(items)))
	return out
}
