package service

import (
	"context"
	"fmt"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// FIFOAllocator debits outbound demand from the oldest AVAILABLE lots first.
type FIFOAllocator struct{}

func NewFIFOAllocator() *FIFOAllocator {
	return &FIFOAllocator{}
}

// Allocate must run inside the caller's transaction. The available lot set is
// read with row locks, so the availability check and the debits it justifies
// cannot interleave with another allocation of the same lots.
//
// On InsufficientStockError nothing has been written.
func (a *FIFOAllocator) Allocate(ctx context.Context, tx port.LotTx, productID, branchID int64, requested int) ([]domain.LotConsumption, error) {
	if requested <= 0 {
		return nil, fmt.Errorf("%w: requested %d", domain.ErrInvalidQuantity, requested)
	}

	lots, err := tx.FindLots(ctx, domain.LotFilter{
		ProductID: productID,
		BranchIDs: []int64{branchID},
		Status:    domain.LotStatusAvailable,
		ForUpdate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("find available lots: %w", err)
	}

	available := 0
	for _, lot := range lots {
		available += lot.Quantity
	}
	if available < requested {
		return nil, &domain.InsufficientStockError{Available: available, Requested: requested}
	}

	remaining := requested
	plan := make([]domain.LotConsumption, 0, len(lots))
	for _, lot := range lots {
		if remaining == 0 {
			break
		}

		take := min(lot.Quantity, remaining)
		if take == 0 {
			continue
		}

		if take == lot.Quantity {
			if err := tx.DeleteLot(ctx, lot.ID); err != nil {
				return nil, fmt.Errorf("delete exhausted lot %d: %w", lot.ID, err)
			}
		} else {
			left := lot.Quantity - take
			if _, err := tx.UpdateLot(ctx, lot.ID, domain.LotUpdate{Quantity: &left}); err != nil {
				return nil, fmt.Errorf("debit lot %d: %w", lot.ID, err)
			}
		}

		plan = append(plan, domain.LotConsumption{
			LotID:          lot.ID,
			InboundOrderID: lot.InboundOrderID,
			Quantity:       take,
		})
		remaining -= take
	}

	return plan, nil
}
