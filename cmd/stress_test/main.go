package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	totalRequests = 50
	userID        = 1
)

// Two lots so the run also crosses a lot boundary.
var lotSizes = []int{8, 12}

func main() {
	ctx := context.Background()
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	store, branch, product, cleanup := openStore(ctx, cfg, logger)
	defer cleanup()

	opts := []service.Option{service.WithMaxAttempts(10)}
	if rdb := cfg.RedisClient(); rdb != nil {
		if err := rdb.Ping(ctx).Err(); err == nil {
			defer rdb.Close()
			redisAdapter := storage.NewRedisAdapter(rdb, time.Hour, cfg.AllocationLockTTL)
			opts = append(opts, service.WithIdempotencyStore(redisAdapter))
			logger.Info("using redis for request ids")
		} else {
			rdb.Close()
		}
	}
	ledger := service.NewLedgerService(store, opts...)

	// Seed inspected stock
	initialStock := 0
	for _, size := range lotSizes {
		receipt, err := ledger.ReceiveInbound(ctx, service.ReceiveInboundRequest{
			ProductID: product.ID,
			BranchID:  branch.ID,
			Quantity:  size,
			UserID:    userID,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to receive stock")
		}
		if _, err := ledger.InspectLot(ctx, service.InspectLotRequest{
			LotID:        receipt.Lot.ID,
			TargetStatus: domain.LotStatusAvailable,
			UserID:       userID,
		}); err != nil {
			logger.WithError(err).Fatal("failed to inspect stock")
		}
		initialStock += size
	}

	// Counters
	var successCount, soldOutCount, errorCount atomic.Int32
	var unitsShipped atomic.Int64

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			order, err := ledger.FulfillOutbound(ctx, service.FulfillOutboundRequest{
				RequestID: uuid.NewString(),
				ProductID: product.ID,
				BranchID:  branch.ID,
				Quantity:  1,
				UserID:    userID,
			})
			switch {
			case err == nil:
				successCount.Add(1)
				for _, c := range order.Consumptions {
					unitsShipped.Add(int64(c.Quantity))
				}
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				logger.WithError(err).Warn("outbound failed")
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && soldOut == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d outbounds succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	if unitsShipped.Load() == int64(success) {
		fmt.Println("PASS: Consumption plans match shipped quantity")
	} else {
		fmt.Printf("FAIL: Plans cover %d units for %d orders\n", unitsShipped.Load(), success)
	}

	// Verify remaining stock is derived as zero
	q, err := ledger.GetProductQuantities(ctx, product.ID)
	if err != nil {
		logger.WithError(err).Fatal("failed to read quantities")
	}
	fmt.Printf("Final Available:  %d\n", q.Available)

	if q.Total() == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", q.Total())
	}
}

// openStore uses MySQL when it is reachable and the in-memory store otherwise.
// Either way a fresh branch and product are created for the run.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (port.LotStore, domain.Branch, domain.Product, func()) {
	runName := "stress-" + uuid.NewString()[:8]

	db, err := cfg.OpenMySQL()
	if err == nil {
		if err = db.PingContext(ctx); err == nil {
			if err := storage.Migrate(ctx, db); err != nil {
				logger.WithError(err).Fatal("failed to migrate schema")
			}
			adapter := storage.NewMySQLAdapter(db)
			branch, err := adapter.CreateBranch(ctx, domain.Branch{Name: runName})
			if err != nil {
				logger.WithError(err).Fatal("failed to create branch")
			}
			product, err := adapter.CreateProduct(ctx, domain.Product{Name: runName, BranchID: branch.ID})
			if err != nil {
				logger.WithError(err).Fatal("failed to create product")
			}
			logger.Info("using mysql lot store")
			return adapter, branch, product, func() { db.Close() }
		}
		db.Close()
	}
	logger.WithError(err).Warn("mysql unavailable; using in-memory lot store")

	adapter := storage.NewMemoryAdapter()
	branch := adapter.CreateBranch(domain.Branch{Name: runName})
	product, err := adapter.CreateProduct(domain.Product{Name: runName, BranchID: branch.ID})
	if err != nil {
		logger.WithError(err).Fatal("failed to create product")
	}
	return adapter, branch, product, func() {}
}
