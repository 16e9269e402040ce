package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seedProduct creates a fresh branch and product so tests do not share rows.
func seedProduct(t *testing.T, ctx context.Context, adapter *MySQLAdapter) (domain.Branch, domain.Product) {
	t.Helper()

	branch, err := adapter.CreateBranch(ctx, domain.Branch{
		Name:     fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano()),
		Location: "test",
	})
	if err != nil {
		t.Fatalf("setup branch failed: %v", err)
	}
	product, err := adapter.CreateProduct(ctx, domain.Product{Name: "widget", BranchID: branch.ID})
	if err != nil {
		t.Fatalf("setup product failed: %v", err)
	}
	return branch, product
}

func receiveLot(t *testing.T, ctx context.Context, adapter *MySQLAdapter, product domain.Product, qty int, status domain.LotStatus, createdAt time.Time) domain.StockLot {
	t.Helper()

	var lot domain.StockLot
	err := adapter.RunInTransaction(ctx, func(ctx context.Context, tx port.LotTx) error {
		order, err := tx.CreateInboundOrder(ctx, domain.InboundOrder{
			ProductID: product.ID,
			BranchID:  product.BranchID,
			Quantity:  qty,
			UserID:    1,
			CreatedAt: createdAt,
		})
		if err != nil {
			return err
		}
		lot, err = tx.CreateLot(ctx, domain.StockLot{
			ProductID:      product.ID,
			BranchID:       product.BranchID,
			InboundOrderID: order.ID,
			Quantity:       qty,
			Status:         status,
			CreatedAt:      createdAt,
			CreatedBy:      1,
		})
		return err
	})
	if err != nil {
		t.Fatalf("setup lot failed: %v", err)
	}
	return lot
}

func TestMigrate_Repeatable(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestFindLots_FIFOOrder(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	branch, product := seedProduct(t, ctx, adapter)

	base := time.Now().UTC().Truncate(time.Microsecond)
	newer := receiveLot(t, ctx, adapter, product, 5, domain.LotStatusAvailable, base.Add(time.Second))
	older := receiveLot(t, ctx, adapter, product, 7, domain.LotStatusAvailable, base)
	receiveLot(t, ctx, adapter, product, 9, domain.LotStatusPending, base)

	var lots []domain.StockLot
	err := adapter.RunInTransaction(ctx, func(ctx context.Context, tx port.LotTx) error {
		var err error
		lots, err = tx.FindLots(ctx, domain.LotFilter{
			ProductID: product.ID,
			BranchIDs: []int64{branch.ID},
			Status:    domain.LotStatusAvailable,
			ForUpdate: true,
		})
		return err
	})
	if err != nil {
		t.Fatalf("FindLots failed: %v", err)
	}

	if len(lots) != 2 {
		t.Fatalf("expected 2 lots, got %d", len(lots))
	}
	if lots[0].ID != older.ID || lots[1].ID != newer.ID {
		t.Errorf("expected order [%d %d], got [%d %d]", older.ID, newer.ID, lots[0].ID, lots[1].ID)
	}
	if !lots[0].CreatedAt.Equal(base) {
		t.Errorf("expected created_at %v, got %v", base, lots[0].CreatedAt)
	}
}

func TestFindLots_EmptyBranchScope(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	_, product := seedProduct(t, ctx, adapter)
	receiveLot(t, ctx, adapter, product, 5, domain.LotStatusPending, time.Now().UTC())

	err := adapter.RunInTransaction(ctx, func(ctx context.Context, tx port.LotTx) error {
		lots, err := tx.FindLots(ctx, domain.LotFilter{ProductID: product.ID, BranchIDs: []int64{}})
		if err != nil {
			return err
		}
		if len(lots) != 0 {
			t.Errorf("expected no lots, got %d", len(lots))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunInTransaction_RollbackOnError(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	_, product := seedProduct(t, ctx, adapter)
	lot := receiveLot(t, ctx, adapter, product, 10, domain.LotStatusAvailable, time.Now().UTC())

	boom := errors.New("boom")
	err := adapter.RunInTransaction(ctx, func(ctx context.Context, tx port.LotTx) error {
		qty := 1
		if _, err := tx.UpdateLot(ctx, lot.ID, domain.LotUpdate{Quantity: &qty}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var stock int
	db.QueryRowContext(ctx, `SELECT quantity FROM stock_lots WHERE id = ?`, lot.ID).Scan(&stock)
	if stock != 10 {
		t.Errorf("expected quantity 10 after rollback, got %d", stock)
	}
}

func TestUpdateLot_Inspection(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	_, product := seedProduct(t, ctx, adapter)
	lot := receiveLot(t, ctx, adapter, product, 10, domain.LotStatusPending, time.Now().UTC())

	status := domain.LotStatusQuarantined
	qty := 4
	at := time.Now().UTC().Truncate(time.Microsecond)
	var by int64 = 42

	var updated domain.StockLot
	err := adapter.RunInTransaction(ctx, func(ctx context.Context, tx port.LotTx) error {
		var err error
		updated, err = tx.UpdateLot(ctx, lot.ID, domain.LotUpdate{
			Status:      &status,
			Quantity:    &qty,
			InspectedAt: &at,
			InspectedBy: &by,
		})
		return err
	})
	if err != nil {
		t.Fatalf("UpdateLot failed: %v", err)
	}

	if updated.Status != domain.LotStatusQuarantined || updated.Quantity != 4 {
		t.Errorf("unexpected lot: %+v", updated)
	}
	if updated.InspectedAt == nil || !updated.InspectedAt.Equal(at) {
		t.Errorf("expected inspected_at %v, got %v", at, updated.InspectedAt)
	}
	if updated.InspectedBy == nil || *updated.InspectedBy != by {
		t.Errorf("expected inspected_by %d, got %v", by, updated.InspectedBy)
	}
}

func TestDeleteLot_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	err := adapter.RunInTransaction(ctx, func(ctx context.Context, tx port.LotTx) error {
		return tx.DeleteLot(ctx, -1)
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateLot_BranchMismatch(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	_, product := seedProduct(t, ctx, adapter)
	otherBranch, _ := seedProduct(t, ctx, adapter)

	err := adapter.RunInTransaction(ctx, func(ctx context.Context, tx port.LotTx) error {
		order, err := tx.CreateInboundOrder(ctx, domain.InboundOrder{
			ProductID: product.ID, BranchID: product.BranchID, Quantity: 1, UserID: 1, CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		_, err = tx.CreateLot(ctx, domain.StockLot{
			ProductID: product.ID, BranchID: otherBranch.ID, InboundOrderID: order.ID,
			Quantity: 1, Status: domain.LotStatusPending, CreatedAt: time.Now().UTC(), CreatedBy: 1,
		})
		return err
	})
	if !errors.Is(err, domain.ErrBranchMismatch) {
		t.Errorf("expected ErrBranchMismatch, got %v", err)
	}
}

func TestSumLotQuantities(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	_, product := seedProduct(t, ctx, adapter)
	now := time.Now().UTC()
	receiveLot(t, ctx, adapter, product, 10, domain.LotStatusAvailable, now)
	receiveLot(t, ctx, adapter, product, 5, domain.LotStatusAvailable, now)
	receiveLot(t, ctx, adapter, product, 3, domain.LotStatusQuarantined, now)

	var sums map[domain.LotStatus]int
	err := adapter.RunInTransaction(ctx, func(ctx context.Context, tx port.LotTx) error {
		var err error
		sums, err = tx.SumLotQuantities(ctx, product.ID)
		return err
	})
	if err != nil {
		t.Fatalf("SumLotQuantities failed: %v", err)
	}

	if sums[domain.LotStatusAvailable] != 15 || sums[domain.LotStatusQuarantined] != 3 || sums[domain.LotStatusPending] != 0 {
		t.Errorf("unexpected sums: %v", sums)
	}
}

func TestLedger_FulfillRecordsConsumptions(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	branch, product := seedProduct(t, ctx, adapter)
	base := time.Now().UTC()
	first := receiveLot(t, ctx, adapter, product, 50, domain.LotStatusAvailable, base)
	second := receiveLot(t, ctx, adapter, product, 50, domain.LotStatusAvailable, base.Add(time.Second))

	ledger := service.NewLedgerService(adapter)
	order, err := ledger.FulfillOutbound(ctx, service.FulfillOutboundRequest{
		ProductID: product.ID,
		BranchID:  branch.ID,
		Quantity:  70,
		UserID:    7,
	})
	if err != nil {
		t.Fatalf("FulfillOutbound failed: %v", err)
	}

	stored, err := ledger.GetOutboundOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOutboundOrder failed: %v", err)
	}
	want := []domain.LotConsumption{
		{LotID: first.ID, InboundOrderID: first.InboundOrderID, Quantity: 50},
		{LotID: second.ID, InboundOrderID: second.InboundOrderID, Quantity: 20},
	}
	if len(stored.Consumptions) != len(want) {
		t.Fatalf("expected %d consumptions, got %+v", len(want), stored.Consumptions)
	}
	for i := range want {
		if stored.Consumptions[i] != want[i] {
			t.Errorf("consumption %d: expected %+v, got %+v", i, want[i], stored.Consumptions[i])
		}
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_lots WHERE id = ?`, first.ID).Scan(&count)
	if count != 0 {
		t.Error("expected exhausted lot to be deleted")
	}
}

func TestLedger_ConcurrentFulfill(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	branch, product := seedProduct(t, ctx, adapter)
	receiveLot(t, ctx, adapter, product, 100, domain.LotStatusAvailable, time.Now().UTC())

	ledger := service.NewLedgerService(adapter)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.FulfillOutbound(ctx, service.FulfillOutboundRequest{
				ProductID: product.ID,
				BranchID:  branch.ID,
				Quantity:  60,
				UserID:    1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || insufficient != 1 {
		t.Errorf("expected 1 success and 1 insufficient, got %d and %d", successes, insufficient)
	}

	quantities, err := ledger.GetProductQuantities(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetProductQuantities failed: %v", err)
	}
	if quantities.Available != 40 {
		t.Errorf("expected 40 available, got %d", quantities.Available)
	}
}
