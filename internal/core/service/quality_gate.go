package service

import (
	"fmt"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// QualityGate enforces the lot status state machine:
// PENDING -> AVAILABLE or PENDING -> QUARANTINED, nothing else.
// Who may inspect is decided by the caller.
type QualityGate struct{}

func NewQualityGate() *QualityGate {
	return &QualityGate{}
}

// Inspect returns the lot as it will look after inspection together with the
// update that produces it. It performs no I/O.
func (g *QualityGate) Inspect(lot domain.StockLot, target domain.LotStatus, quantityOverride *int, inspectedBy int64, now time.Time) (domain.StockLot, domain.LotUpdate, error) {
	if lot.Status != domain.LotStatusPending {
		return domain.StockLot{}, domain.LotUpdate{}, fmt.Errorf("%w: lot %d is %s, only PENDING lots can be inspected",
			domain.ErrInvalidTransition, lot.ID, lot.Status)
	}
	if !target.Inspected() {
		return domain.StockLot{}, domain.LotUpdate{}, fmt.Errorf("%w: %q, must be AVAILABLE or QUARANTINED",
			domain.ErrInvalidTargetStatus, target)
	}

	update := domain.LotUpdate{
		Status:      &target,
		InspectedAt: &now,
		InspectedBy: &inspectedBy,
	}
	if quantityOverride != nil {
		if *quantityOverride < 0 {
			return domain.StockLot{}, domain.LotUpdate{}, fmt.Errorf("%w: override %d is negative",
				domain.ErrInvalidQuantity, *quantityOverride)
		}
		qty := *quantityOverride
		update.Quantity = &qty
	}

	return update.Apply(lot), update, nil
}
