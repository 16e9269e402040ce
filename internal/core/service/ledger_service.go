package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 10 * time.Millisecond
	defaultPageSize     = 100
	maxPageSize         = 500

	outboundKeyPrefix = "outbound:"
)

type ReceiveInboundRequest struct {
	ProductID int64
	BranchID  int64
	Quantity  int
	UserID    int64
}

type ShipmentItem struct {
	ProductID int64
	Quantity  int
}

// ReceiveShipmentRequest receives several items into one branch at once.
// Each item yields its own inbound order and lot.
type ReceiveShipmentRequest struct {
	BranchID int64
	UserID   int64
	Items    []ShipmentItem
}

// Receipt is the pair of records created by one receipt.
type Receipt struct {
	InboundOrder domain.InboundOrder
	Lot          domain.StockLot
}

type InspectLotRequest struct {
	LotID            int64
	TargetStatus     domain.LotStatus
	QuantityOverride *int
	UserID           int64
}

type FulfillOutboundRequest struct {
	// RequestID makes the call idempotent when an idempotency store is configured
	RequestID string
	ProductID int64
	BranchID  int64
	Quantity  int
	UserID    int64
}

// LotQuery pages through lots. Nil BranchIDs means all branches.
type LotQuery struct {
	BranchIDs []int64
	Offset    int
	Limit     int
}

type Option func(*LedgerService)

func WithIdempotencyStore(store port.IdempotencyStore) Option {
	return func(s *LedgerService) { s.idempotency = store }
}

func WithAllocationLocker(locker port.AllocationLocker) Option {
	return func(s *LedgerService) { s.locker = locker }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithMaxAttempts bounds how often an operation is run when the store reports
// a transaction conflict.
func WithMaxAttempts(n int) Option {
	return func(s *LedgerService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(s *LedgerService) { s.retryBackoff = d }
}

// LedgerService owns the lot lifecycle. Every operation is one atomic
// transaction against the LotStore. It performs no logging and no
// authorization; callers are expected to have checked role and branch access.
type LedgerService struct {
	store       port.LotStore
	idempotency port.IdempotencyStore
	locker      port.AllocationLocker

	gate       *QualityGate
	allocator  *FIFOAllocator
	aggregator *QuantityAggregator

	now          func() time.Time
	maxAttempts  int
	retryBackoff time.Duration
}

func NewLedgerService(store port.LotStore, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:        store,
		gate:         NewQualityGate(),
		allocator:    NewFIFOAllocator(),
		aggregator:   NewQuantityAggregator(),
		now:          time.Now,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) ReceiveInbound(ctx context.Context, req ReceiveInboundRequest) (Receipt, error) {
	if req.Quantity <= 0 {
		return Receipt{}, fmt.Errorf("%w: received quantity %d", domain.ErrInvalidQuantity, req.Quantity)
	}

	var receipt Receipt
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		r, err := s.receive(ctx, tx, req.ProductID, req.BranchID, req.Quantity, req.UserID)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func (s *LedgerService) ReceiveShipment(ctx context.Context, req ReceiveShipmentRequest) ([]Receipt, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: shipment has no items", domain.ErrInvalidQuantity)
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity %d", domain.ErrInvalidQuantity, i, item.Quantity)
		}
	}

	var receipts []Receipt
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		receipts = make([]Receipt, 0, len(req.Items))
		for _, item := range req.Items {
			r, err := s.receive(ctx, tx, item.ProductID, req.BranchID, item.Quantity, req.UserID)
			if err != nil {
				return err
			}
			receipts = append(receipts, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

func (s *LedgerService) receive(ctx context.Context, tx port.LotTx, productID, branchID int64, quantity int, userID int64) (Receipt, error) {
	if _, err := s.productInBranch(ctx, tx, productID, branchID, false); err != nil {
		return Receipt{}, err
	}

	now := s.timestamp()
	order, err := tx.CreateInboundOrder(ctx, domain.InboundOrder{
		ProductID: productID,
		BranchID:  branchID,
		Quantity:  quantity,
		UserID:    userID,
		CreatedAt: now,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("create inbound order: %w", err)
	}

	lot, err := tx.CreateLot(ctx, domain.StockLot{
		ProductID:      productID,
		BranchID:       branchID,
		InboundOrderID: order.ID,
		Quantity:       quantity,
		Status:         domain.LotStatusPending,
		CreatedAt:      now,
		CreatedBy:      userID,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("create lot: %w", err)
	}

	return Receipt{InboundOrder: order, Lot: lot}, nil
}

// InspectLot moves a PENDING lot to AVAILABLE or QUARANTINED. A quantity
// override of zero removes the lot; the returned lot then reports quantity 0.
func (s *LedgerService) InspectLot(ctx context.Context, req InspectLotRequest) (domain.StockLot, error) {
	var result domain.StockLot
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		lot, err := tx.GetLot(ctx, req.LotID, true)
		if err != nil {
			return fmt.Errorf("get lot %d: %w", req.LotID, err)
		}

		inspected, update, err := s.gate.Inspect(lot, req.TargetStatus, req.QuantityOverride, req.UserID, s.timestamp())
		if err != nil {
			return err
		}

		if inspected.Quantity == 0 {
			if err := tx.DeleteLot(ctx, lot.ID); err != nil {
				return fmt.Errorf("delete empty lot %d: %w", lot.ID, err)
			}
			result = inspected
			return nil
		}

		updated, err := tx.UpdateLot(ctx, lot.ID, update)
		if err != nil {
			return fmt.Errorf("update lot %d: %w", lot.ID, err)
		}
		result = updated
		return nil
	})
	if err != nil {
		return domain.StockLot{}, err
	}
	return result, nil
}

// FulfillOutbound allocates req.Quantity FIFO from the product's AVAILABLE
// lots in the branch and records the outbound order with its consumption
// plan. On InsufficientStockError no lot is touched and no order exists.
func (s *LedgerService) FulfillOutbound(ctx context.Context, req FulfillOutboundRequest) (order domain.OutboundOrder, err error) {
	if req.Quantity <= 0 {
		return domain.OutboundOrder{}, fmt.Errorf("%w: requested quantity %d", domain.ErrInvalidQuantity, req.Quantity)
	}

	if req.RequestID != "" && s.idempotency != nil {
		key := outboundKeyPrefix + req.RequestID
		ok, claimErr := s.idempotency.ClaimRequest(ctx, key)
		if claimErr != nil {
			return domain.OutboundOrder{}, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !ok {
			return domain.OutboundOrder{}, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.idempotency.ReleaseRequest(context.WithoutCancel(ctx), key); releaseErr != nil {
				err = errors.Join(err, fmt.Errorf("release request %s: %w", req.RequestID, releaseErr))
			}
		}()
	}

	allocate := func(ctx context.Context, tx port.LotTx) error {
		if _, err := s.productInBranch(ctx, tx, req.ProductID, req.BranchID, true); err != nil {
			return err
		}

		plan, err := s.allocator.Allocate(ctx, tx, req.ProductID, req.BranchID, req.Quantity)
		if err != nil {
			return err
		}

		created, err := tx.CreateOutboundOrder(ctx, domain.OutboundOrder{
			ProductID: req.ProductID,
			BranchID:  req.BranchID,
			Quantity:  req.Quantity,
			UserID:    req.UserID,
			CreatedAt: s.timestamp(),
		})
		if err != nil {
			return fmt.Errorf("create outbound order: %w", err)
		}
		if err := tx.CreateLotConsumptions(ctx, created.ID, plan); err != nil {
			return fmt.Errorf("record consumptions of order %d: %w", created.ID, err)
		}

		created.Consumptions = plan
		order = created
		return nil
	}

	// a busy allocation lock is a conflict like any other and is retried
	err = s.withRetry(ctx, func() error {
		if s.locker == nil {
			return s.store.RunInTransaction(ctx, allocate)
		}
		release, err := s.locker.LockAllocation(ctx, req.ProductID, req.BranchID)
		if err != nil {
			return fmt.Errorf("lock allocation: %w", err)
		}
		defer func() {
			_ = release(context.WithoutCancel(ctx))
		}()
		return s.store.RunInTransaction(ctx, allocate)
	})
	if err != nil {
		return domain.OutboundOrder{}, err
	}
	return order, nil
}

func (s *LedgerService) GetProductQuantities(ctx context.Context, productID int64) (domain.ProductQuantities, error) {
	var quantities domain.ProductQuantities
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		if _, err := tx.GetProduct(ctx, productID, false); err != nil {
			return fmt.Errorf("get product %d: %w", productID, err)
		}
		q, err := s.aggregator.Aggregate(ctx, tx, productID)
		if err != nil {
			return err
		}
		quantities = q
		return nil
	})
	if err != nil {
		return domain.ProductQuantities{}, err
	}
	return quantities, nil
}

func (s *LedgerService) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	var product domain.Product
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		p, err := tx.GetProduct(ctx, productID, false)
		if err != nil {
			return fmt.Errorf("get product %d: %w", productID, err)
		}
		product = p
		return nil
	})
	return product, err
}

func (s *LedgerService) GetLot(ctx context.Context, lotID int64) (domain.StockLot, error) {
	var lot domain.StockLot
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		l, err := tx.GetLot(ctx, lotID, false)
		if err != nil {
			return fmt.Errorf("get lot %d: %w", lotID, err)
		}
		lot = l
		return nil
	})
	return lot, err
}

// ListLots returns every remaining lot of a product, oldest first.
func (s *LedgerService) ListLots(ctx context.Context, productID int64, query LotQuery) ([]domain.StockLot, error) {
	offset, limit := page(query.Offset, query.Limit)

	var lots []domain.StockLot
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		if _, err := tx.GetProduct(ctx, productID, false); err != nil {
			return fmt.Errorf("get product %d: %w", productID, err)
		}
		found, err := tx.FindLots(ctx, domain.LotFilter{
			ProductID: productID,
			BranchIDs: query.BranchIDs,
			Offset:    offset,
			Limit:     limit,
		})
		if err != nil {
			return fmt.Errorf("find lots: %w", err)
		}
		lots = found
		return nil
	})
	return lots, err
}

// ListPendingLots returns lots awaiting inspection, oldest first.
func (s *LedgerService) ListPendingLots(ctx context.Context, query LotQuery) ([]domain.StockLot, error) {
	offset, limit := page(query.Offset, query.Limit)

	var lots []domain.StockLot
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		found, err := tx.FindLots(ctx, domain.LotFilter{
			BranchIDs: query.BranchIDs,
			Status:    domain.LotStatusPending,
			Offset:    offset,
			Limit:     limit,
		})
		if err != nil {
			return fmt.Errorf("find pending lots: %w", err)
		}
		lots = found
		return nil
	})
	return lots, err
}

func (s *LedgerService) GetInboundOrder(ctx context.Context, id int64) (domain.InboundOrder, error) {
	var order domain.InboundOrder
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		o, err := tx.GetInboundOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("get inbound order %d: %w", id, err)
		}
		order = o
		return nil
	})
	return order, err
}

func (s *LedgerService) ListInboundOrders(ctx context.Context, query domain.OrderQuery) ([]domain.InboundOrder, error) {
	query.Offset, query.Limit = page(query.Offset, query.Limit)

	var orders []domain.InboundOrder
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		found, err := tx.ListInboundOrders(ctx, query)
		if err != nil {
			return fmt.Errorf("list inbound orders: %w", err)
		}
		orders = found
		return nil
	})
	return orders, err
}

// GetOutboundOrder returns the order together with the lots it drew from.
func (s *LedgerService) GetOutboundOrder(ctx context.Context, id int64) (domain.OutboundOrder, error) {
	var order domain.OutboundOrder
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		o, err := tx.GetOutboundOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("get outbound order %d: %w", id, err)
		}
		plan, err := tx.ListLotConsumptions(ctx, id)
		if err != nil {
			return fmt.Errorf("list consumptions of order %d: %w", id, err)
		}
		o.Consumptions = plan
		order = o
		return nil
	})
	return order, err
}

func (s *LedgerService) ListOutboundOrders(ctx context.Context, query domain.OrderQuery) ([]domain.OutboundOrder, error) {
	query.Offset, query.Limit = page(query.Offset, query.Limit)

	var orders []domain.OutboundOrder
	err := s.transact(ctx, func(ctx context.Context, tx port.LotTx) error {
		found, err := tx.ListOutboundOrders(ctx, query)
		if err != nil {
			return fmt.Errorf("list outbound orders: %w", err)
		}
		orders = found
		return nil
	})
	return orders, err
}

// productInBranch loads the product and checks it lives in branchID.
func (s *LedgerService) productInBranch(ctx context.Context, tx port.LotTx, productID, branchID int64, forUpdate bool) (domain.Product, error) {
	if _, err := tx.GetBranch(ctx, branchID); err != nil {
		return domain.Product{}, fmt.Errorf("get branch %d: %w", branchID, err)
	}
	product, err := tx.GetProduct(ctx, productID, forUpdate)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %d: %w", productID, err)
	}
	if product.BranchID != branchID {
		return domain.Product{}, fmt.Errorf("%w: product %d belongs to branch %d, not %d",
			domain.ErrBranchMismatch, productID, product.BranchID, branchID)
	}
	return product, nil
}

func (s *LedgerService) transact(ctx context.Context, fn func(ctx context.Context, tx port.LotTx) error) error {
	return s.withRetry(ctx, func() error {
		return s.store.RunInTransaction(ctx, fn)
	})
}

// timestamp is truncated to microseconds, the precision of the SQL store.
func (s *LedgerService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func page(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}
