package service

import (
	"context"
	"fmt"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// QuantityAggregator derives a product's per-status totals from its lots.
// Totals are recomputed on every call; nothing is cached on the product.
type QuantityAggregator struct{}

func NewQuantityAggregator() *QuantityAggregator {
	return &QuantityAggregator{}
}

func (a *QuantityAggregator) Aggregate(ctx context.Context, tx port.LotTx, productID int64) (domain.ProductQuantities, error) {
	sums, err := tx.SumLotQuantities(ctx, productID)
	if err != nil {
		return domain.ProductQuantities{}, fmt.Errorf("sum lot quantities: %w", err)
	}

	// missing statuses read as zero
	return domain.ProductQuantities{
		ProductID:   productID,
		Available:   sums[domain.LotStatusAvailable],
		Pending:     sums[domain.LotStatusPending],
		Quarantined: sums[domain.LotStatusQuarantined],
	}, nil
}
