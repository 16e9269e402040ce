package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var _ port.LotStore = (*MemoryAdapter)(nil)

type memoryState struct {
	branches     map[int64]domain.Branch
	products     map[int64]domain.Product
	lots         map[int64]domain.StockLot
	inbound      map[int64]domain.InboundOrder
	outbound     map[int64]domain.OutboundOrder
	consumptions map[int64][]domain.LotConsumption

	nextBranchID   int64
	nextProductID  int64
	nextLotID      int64
	nextInboundID  int64
	nextOutboundID int64
}

func newMemoryState() memoryState {
	return memoryState{
		branches:     make(map[int64]domain.Branch),
		products:     make(map[int64]domain.Product),
		lots:         make(map[int64]domain.StockLot),
		inbound:      make(map[int64]domain.InboundOrder),
		outbound:     make(map[int64]domain.OutboundOrder),
		consumptions: make(map[int64][]domain.LotConsumption),
	}
}

// clone copies every map. Records are values; lot pointer fields are
// replaced, never mutated in place, so sharing them is safe.
func (s memoryState) clone() memoryState {
	c := s
	c.branches = maps.Clone(s.branches)
	c.products = maps.Clone(s.products)
	c.lots = maps.Clone(s.lots)
	c.inbound = maps.Clone(s.inbound)
	c.outbound = maps.Clone(s.outbound)
	c.consumptions = maps.Clone(s.consumptions)
	return c
}

// MemoryAdapter is a LotStore held in process memory. Transactions are
// serialized by a single lock and work on a private copy of the state that
// replaces the committed state only on success.
type MemoryAdapter struct {
	mu    sync.Mutex
	state memoryState
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{state: newMemoryState()}
}

// CreateBranch registers a branch. Branch management lives outside the
// ledger; this exists to seed the store.
func (m *MemoryAdapter) CreateBranch(branch domain.Branch) domain.Branch {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.nextBranchID++
	branch.ID = m.state.nextBranchID
	m.state.branches[branch.ID] = branch
	return branch
}

// CreateProduct registers a product in an existing branch.
func (m *MemoryAdapter) CreateProduct(product domain.Product) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.branches[product.BranchID]; !ok {
		return domain.Product{}, fmt.Errorf("%w: branch %d", domain.ErrNotFound, product.BranchID)
	}
	m.state.nextProductID++
	product.ID = m.state.nextProductID
	m.state.products[product.ID] = product
	return product, nil
}

func (m *MemoryAdapter) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx port.LotTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.state = tx.state
	return nil
}

type memoryTx struct {
	state memoryState
}

func (tx *memoryTx) GetBranch(_ context.Context, id int64) (domain.Branch, error) {
	b, ok := tx.state.branches[id]
	if !ok {
		return domain.Branch{}, fmt.Errorf("%w: branch %d", domain.ErrNotFound, id)
	}
	return b, nil
}

func (tx *memoryTx) GetProduct(_ context.Context, id int64, _ bool) (domain.Product, error) {
	p, ok := tx.state.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
	}
	return p, nil
}

func (tx *memoryTx) GetLot(_ context.Context, id int64, _ bool) (domain.StockLot, error) {
	lot, ok := tx.state.lots[id]
	if !ok {
		return domain.StockLot{}, fmt.Errorf("%w: lot %d", domain.ErrNotFound, id)
	}
	return lot, nil
}

func (tx *memoryTx) FindLots(_ context.Context, filter domain.LotFilter) ([]domain.StockLot, error) {
	var lots []domain.StockLot
	for _, lot := range tx.state.lots {
		if filter.Matches(lot) {
			lots = append(lots, lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		return domain.LotBefore(lots[i], lots[j])
	})
	return paginate(lots, filter.Offset, filter.Limit), nil
}

func (tx *memoryTx) CreateLot(_ context.Context, lot domain.StockLot) (domain.StockLot, error) {
	if lot.Quantity < 0 {
		return domain.StockLot{}, fmt.Errorf("%w: lot quantity %d", domain.ErrInvalidQuantity, lot.Quantity)
	}
	product, ok := tx.state.products[lot.ProductID]
	if !ok {
		return domain.StockLot{}, fmt.Errorf("%w: product %d", domain.ErrNotFound, lot.ProductID)
	}
	if product.BranchID != lot.BranchID {
		return domain.StockLot{}, fmt.Errorf("%w: lot branch %d, product branch %d",
			domain.ErrBranchMismatch, lot.BranchID, product.BranchID)
	}
	if _, ok := tx.state.inbound[lot.InboundOrderID]; !ok {
		return domain.StockLot{}, fmt.Errorf("%w: inbound order %d", domain.ErrNotFound, lot.InboundOrderID)
	}

	tx.state.nextLotID++
	lot.ID = tx.state.nextLotID
	tx.state.lots[lot.ID] = lot
	return lot, nil
}

func (tx *memoryTx) UpdateLot(_ context.Context, id int64, update domain.LotUpdate) (domain.StockLot, error) {
	lot, ok := tx.state.lots[id]
	if !ok {
		return domain.StockLot{}, fmt.Errorf("%w: lot %d", domain.ErrNotFound, id)
	}
	if update.Quantity != nil && *update.Quantity < 0 {
		return domain.StockLot{}, fmt.Errorf("%w: lot quantity %d", domain.ErrInvalidQuantity, *update.Quantity)
	}

	lot = update.Apply(lot)
	tx.state.lots[id] = lot
	return lot, nil
}

func (tx *memoryTx) DeleteLot(_ context.Context, id int64) error {
	if _, ok := tx.state.lots[id]; !ok {
		return fmt.Errorf("%w: lot %d", domain.ErrNotFound, id)
	}
	delete(tx.state.lots, id)
	return nil
}

func (tx *memoryTx) SumLotQuantities(_ context.Context, productID int64) (map[domain.LotStatus]int, error) {
	sums := make(map[domain.LotStatus]int)
	for _, lot := range tx.state.lots {
		if lot.ProductID == productID {
			sums[lot.Status] += lot.Quantity
		}
	}
	return sums, nil
}

func (tx *memoryTx) CreateInboundOrder(_ context.Context, order domain.InboundOrder) (domain.InboundOrder, error) {
	tx.state.nextInboundID++
	order.ID = tx.state.nextInboundID
	tx.state.inbound[order.ID] = order
	return order, nil
}

func (tx *memoryTx) GetInboundOrder(_ context.Context, id int64) (domain.InboundOrder, error) {
	o, ok := tx.state.inbound[id]
	if !ok {
		return domain.InboundOrder{}, fmt.Errorf("%w: inbound order %d", domain.ErrNotFound, id)
	}
	return o, nil
}

func (tx *memoryTx) ListInboundOrders(_ context.Context, query domain.OrderQuery) ([]domain.InboundOrder, error) {
	var orders []domain.InboundOrder
	for _, o := range tx.state.inbound {
		if query.Matches(o.BranchID) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return paginate(orders, query.Offset, query.Limit), nil
}

func (tx *memoryTx) CreateOutboundOrder(_ context.Context, order domain.OutboundOrder) (domain.OutboundOrder, error) {
	tx.state.nextOutboundID++
	order.ID = tx.state.nextOutboundID
	order.Consumptions = nil
	tx.state.outbound[order.ID] = order
	return order, nil
}

func (tx *memoryTx) GetOutboundOrder(_ context.Context, id int64) (domain.OutboundOrder, error) {
	o, ok := tx.state.outbound[id]
	if !ok {
		return domain.OutboundOrder{}, fmt.Errorf("%w: outbound order %d", domain.ErrNotFound, id)
	}
	return o, nil
}

func (tx *memoryTx) ListOutboundOrders(_ context.Context, query domain.OrderQuery) ([]domain.OutboundOrder, error) {
	var orders []domain.OutboundOrder
	for _, o := range tx.state.outbound {
		if query.Matches(o.BranchID) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return paginate(orders, query.Offset, query.Limit), nil
}

func (tx *memoryTx) CreateLotConsumptions(_ context.Context, outboundOrderID int64, plan []domain.LotConsumption) error {
	if _, ok := tx.state.outbound[outboundOrderID]; !ok {
		return fmt.Errorf("%w: outbound order %d", domain.ErrNotFound, outboundOrderID)
	}
	tx.state.consumptions[outboundOrderID] = slices.Clone(plan)
	return nil
}

func (tx *memoryTx) ListLotConsumptions(_ context.Context, outboundOrderID int64) ([]domain.LotConsumption, error) {
	return slices.Clone(tx.state.consumptions[outboundOrderID]), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
