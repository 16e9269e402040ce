package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// LotStore is the transactional boundary over the ledger relations.
type LotStore interface {
	// RunInTransaction runs fn inside one atomic transaction. The transaction
	// commits only if fn returns nil and ctx is still live; every other exit
	// path rolls back.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx LotTx) error) error
}

// LotTx is the set of repository operations available inside a transaction.
type LotTx interface {
	CatalogRepository
	LotRepository
	OrderRepository
}

type CatalogRepository interface {
	// GetBranch returns domain.ErrNotFound if the branch does not exist
	GetBranch(ctx context.Context, id int64) (domain.Branch, error)

	// GetProduct returns domain.ErrNotFound if the product does not exist.
	// forUpdate holds a row lock on the product until the transaction ends.
	GetProduct(ctx context.Context, id int64, forUpdate bool) (domain.Product, error)
}

type LotRepository interface {
	// GetLot returns domain.ErrNotFound if the lot does not exist
	GetLot(ctx context.Context, id int64, forUpdate bool) (domain.StockLot, error)

	// FindLots returns lots matching filter ordered by created_at, then id
	FindLots(ctx context.Context, filter domain.LotFilter) ([]domain.StockLot, error)

	// CreateLot assigns the lot id
	CreateLot(ctx context.Context, lot domain.StockLot) (domain.StockLot, error)

	UpdateLot(ctx context.Context, id int64, update domain.LotUpdate) (domain.StockLot, error)

	DeleteLot(ctx context.Context, id int64) error

	// SumLotQuantities returns the quantity total per status for a product.
	// Statuses without lots may be absent from the map.
	SumLotQuantities(ctx context.Context, productID int64) (map[domain.LotStatus]int, error)
}

type OrderRepository interface {
	CreateInboundOrder(ctx context.Context, order domain.InboundOrder) (domain.InboundOrder, error)
	GetInboundOrder(ctx context.Context, id int64) (domain.InboundOrder, error)
	ListInboundOrders(ctx context.Context, query domain.OrderQuery) ([]domain.InboundOrder, error)

	CreateOutboundOrder(ctx context.Context, order domain.OutboundOrder) (domain.OutboundOrder, error)
	GetOutboundOrder(ctx context.Context, id int64) (domain.OutboundOrder, error)
	ListOutboundOrders(ctx context.Context, query domain.OrderQuery) ([]domain.OutboundOrder, error)

	// CreateLotConsumptions persists an allocation plan against its outbound order
	CreateLotConsumptions(ctx context.Context, outboundOrderID int64, plan []domain.LotConsumption) error
	ListLotConsumptions(ctx context.Context, outboundOrderID int64) ([]domain.LotConsumption, error)
}
