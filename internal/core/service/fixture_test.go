package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type fixture struct {
	store   *storage.MemoryAdapter
	ledger  *LedgerService
	branch  domain.Branch
	product domain.Product
}

// steppingClock advances one second per reading so lots created in sequence
// have strictly increasing timestamps.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := storage.NewMemoryAdapter()
	branch := store.CreateBranch(domain.Branch{Name: "main", Location: "hq"})
	product, err := store.CreateProduct(domain.Product{Name: "widget", BranchID: branch.ID})
	if err != nil {
		t.Fatalf("setup product failed: %v", err)
	}

	opts = append([]Option{WithClock(steppingClock()), WithRetryBackoff(time.Millisecond)}, opts...)
	return &fixture{
		store:   store,
		ledger:  NewLedgerService(store, opts...),
		branch:  branch,
		product: product,
	}
}

// stock receives qty units and inspects the lot into status unless status is PENDING.
func (f *fixture) stock(t *testing.T, qty int, status domain.LotStatus) domain.StockLot {
	t.Helper()

	ctx := context.Background()
	receipt, err := f.ledger.ReceiveInbound(ctx, ReceiveInboundRequest{
		ProductID: f.product.ID,
		BranchID:  f.branch.ID,
		Quantity:  qty,
		UserID:    1,
	})
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if status == domain.LotStatusPending {
		return receipt.Lot
	}

	lot, err := f.ledger.InspectLot(ctx, InspectLotRequest{
		LotID:        receipt.Lot.ID,
		TargetStatus: status,
		UserID:       2,
	})
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	return lot
}

func (f *fixture) quantities(t *testing.T) domain.ProductQuantities {
	t.Helper()

	q, err := f.ledger.GetProductQuantities(context.Background(), f.product.ID)
	if err != nil {
		t.Fatalf("GetProductQuantities failed: %v", err)
	}
	return q
}
