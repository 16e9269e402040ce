package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var _ port.LotStore = (*MySQLAdapter)(nil)

// InnoDB error numbers that mean "run the transaction again".
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

const lotColumns = `id, product_id, branch_id, inbound_order_id, quantity, status,
	created_at, inspected_at, inspected_by, created_by`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// RunInTransaction runs fn at READ COMMITTED. Row locks taken with
// forUpdate reads are held until commit or rollback.
func (m *MySQLAdapter) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx port.LotTx) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translateError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return translateError(err)
	}

	if err := tx.Commit(); err != nil {
		return translateError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// CreateBranch inserts a branch. Branch management lives outside the ledger;
// this exists for seeding and tests.
func (m *MySQLAdapter) CreateBranch(ctx context.Context, branch domain.Branch) (domain.Branch, error) {
	result, err := m.db.ExecContext(ctx, `INSERT INTO branches (name, location) VALUES (?, ?)`,
		branch.Name, branch.Location)
	if err != nil {
		return domain.Branch{}, fmt.Errorf("insert branch: %w", err)
	}
	branch.ID, err = result.LastInsertId()
	if err != nil {
		return domain.Branch{}, fmt.Errorf("branch id: %w", err)
	}
	return branch, nil
}

// CreateProduct inserts a product into an existing branch.
func (m *MySQLAdapter) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	result, err := m.db.ExecContext(ctx, `INSERT INTO products (name, description, branch_id) VALUES (?, ?, ?)`,
		product.Name, product.Description, product.BranchID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	product.ID, err = result.LastInsertId()
	if err != nil {
		return domain.Product{}, fmt.Errorf("product id: %w", err)
	}
	return product, nil
}

// translateError marks deadlocks and lock wait timeouts as transaction
// conflicts, keeping the driver error in the chain.
func translateError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errDeadlock, errLockWaitTimeout:
			return fmt.Errorf("%w: %w", domain.ErrTransactionConflict, err)
		}
	}
	return err
}

type mysqlTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *mysqlTx) GetBranch(ctx context.Context, id int64) (domain.Branch, error) {
	var b domain.Branch
	err := t.tx.QueryRowContext(ctx, `SELECT id, name, location FROM branches WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Branch{}, fmt.Errorf("%w: branch %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Branch{}, fmt.Errorf("query branch: %w", err)
	}
	return b, nil
}

func (t *mysqlTx) GetProduct(ctx context.Context, id int64, forUpdate bool) (domain.Product, error) {
	query := `SELECT id, name, description, branch_id FROM products WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p domain.Product
	err := t.tx.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.BranchID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (t *mysqlTx) GetLot(ctx context.Context, id int64, forUpdate bool) (domain.StockLot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	lot, err := scanLot(t.tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockLot{}, fmt.Errorf("%w: lot %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.StockLot{}, fmt.Errorf("query lot: %w", err)
	}
	return lot, nil
}

func (t *mysqlTx) FindLots(ctx context.Context, filter domain.LotFilter) ([]domain.StockLot, error) {
	if filter.BranchIDs != nil && len(filter.BranchIDs) == 0 {
		return []domain.StockLot{}, nil
	}

	var (
		where []string
		args  []any
	)
	if filter.ProductID != 0 {
		where = append(where, "product_id = ?")
		args = append(args, filter.ProductID)
	}
	if filter.BranchIDs != nil {
		where = append(where, "branch_id IN ("+placeholders(len(filter.BranchIDs))+")")
		for _, id := range filter.BranchIDs {
			args = append(args, id)
		}
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + lotColumns + ` FROM stock_lots`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	query, args = withPage(query, args, filter.Offset, filter.Limit)
	if filter.ForUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lots: %w", err)
	}
	defer rows.Close()

	lots := []domain.StockLot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lots: %w", err)
	}
	return lots, nil
}

func (t *mysqlTx) CreateLot(ctx context.Context, lot domain.StockLot) (domain.StockLot, error) {
	if lot.Quantity < 0 {
		return domain.StockLot{}, fmt.Errorf("%w: lot quantity %d", domain.ErrInvalidQuantity, lot.Quantity)
	}

	// the branch of a lot always equals its product's branch
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_lots (product_id, branch_id, inbound_order_id, quantity, status, created_at, created_by)
		SELECT p.id, ?, ?, ?, ?, ?, ?
		FROM products p
		WHERE p.id = ? AND p.branch_id = ?`,
		lot.BranchID, lot.InboundOrderID, lot.Quantity, string(lot.Status), lot.CreatedAt, lot.CreatedBy,
		lot.ProductID, lot.BranchID,
	)
	if err != nil {
		return domain.StockLot{}, fmt.Errorf("insert lot: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.StockLot{}, fmt.Errorf("%w: product %d is not in branch %d",
			domain.ErrBranchMismatch, lot.ProductID, lot.BranchID)
	}

	lot.ID, err = result.LastInsertId()
	if err != nil {
		return domain.StockLot{}, fmt.Errorf("lot id: %w", err)
	}
	return lot, nil
}

func (t *mysqlTx) UpdateLot(ctx context.Context, id int64, update domain.LotUpdate) (domain.StockLot, error) {
	if update.Empty() {
		return t.GetLot(ctx, id, false)
	}

	var (
		set  []string
		args []any
	)
	if update.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Quantity != nil {
		if *update.Quantity < 0 {
			return domain.StockLot{}, fmt.Errorf("%w: lot quantity %d", domain.ErrInvalidQuantity, *update.Quantity)
		}
		set = append(set, "quantity = ?")
		args = append(args, *update.Quantity)
	}
	if update.InspectedAt != nil {
		set = append(set, "inspected_at = ?")
		args = append(args, *update.InspectedAt)
	}
	if update.InspectedBy != nil {
		set = append(set, "inspected_by = ?")
		args = append(args, *update.InspectedBy)
	}
	args = append(args, id)

	if _, err := t.tx.ExecContext(ctx, `UPDATE stock_lots SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...); err != nil {
		return domain.StockLot{}, fmt.Errorf("update lot: %w", err)
	}

	// RowsAffected is 0 for unchanged rows, so read back instead
	return t.GetLot(ctx, id, false)
}

func (t *mysqlTx) DeleteLot(ctx context.Context, id int64) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM stock_lots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete lot: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: lot %d", domain.ErrNotFound, id)
	}
	return nil
}

func (t *mysqlTx) SumLotQuantities(ctx context.Context, productID int64) (map[domain.LotStatus]int, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT status, COALESCE(SUM(quantity), 0)
		FROM stock_lots
		WHERE product_id = ?
		GROUP BY status`, productID)
	if err != nil {
		return nil, fmt.Errorf("sum lots: %w", err)
	}
	defer rows.Close()

	sums := make(map[domain.LotStatus]int)
	for rows.Next() {
		var (
			status string
			total  int
		)
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		sums[domain.LotStatus(status)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sums: %w", err)
	}
	return sums, nil
}

func (t *mysqlTx) CreateInboundOrder(ctx context.Context, order domain.InboundOrder) (domain.InboundOrder, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO inbound_orders (product_id, branch_id, quantity, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ProductID, order.BranchID, order.Quantity, order.UserID, order.CreatedAt,
	)
	if err != nil {
		return domain.InboundOrder{}, fmt.Errorf("insert inbound order: %w", err)
	}
	order.ID, err = result.LastInsertId()
	if err != nil {
		return domain.InboundOrder{}, fmt.Errorf("inbound order id: %w", err)
	}
	return order, nil
}

func (t *mysqlTx) GetInboundOrder(ctx context.Context, id int64) (domain.InboundOrder, error) {
	var o domain.InboundOrder
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, product_id, branch_id, quantity, user_id, created_at
		FROM inbound_orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.ProductID, &o.BranchID, &o.Quantity, &o.UserID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InboundOrder{}, fmt.Errorf("%w: inbound order %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.InboundOrder{}, fmt.Errorf("query inbound order: %w", err)
	}
	return o, nil
}

func (t *mysqlTx) ListInboundOrders(ctx context.Context, query domain.OrderQuery) ([]domain.InboundOrder, error) {
	if query.BranchIDs != nil && len(query.BranchIDs) == 0 {
		return []domain.InboundOrder{}, nil
	}

	q, args := orderListQuery("inbound_orders", query)
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query inbound orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.InboundOrder{}
	for rows.Next() {
		var o domain.InboundOrder
		if err := rows.Scan(&o.ID, &o.ProductID, &o.BranchID, &o.Quantity, &o.UserID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inbound order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbound orders: %w", err)
	}
	return orders, nil
}

func (t *mysqlTx) CreateOutboundOrder(ctx context.Context, order domain.OutboundOrder) (domain.OutboundOrder, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbound_orders (product_id, branch_id, quantity, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ProductID, order.BranchID, order.Quantity, order.UserID, order.CreatedAt,
	)
	if err != nil {
		return domain.OutboundOrder{}, fmt.Errorf("insert outbound order: %w", err)
	}
	order.ID, err = result.LastInsertId()
	if err != nil {
		return domain.OutboundOrder{}, fmt.Errorf("outbound order id: %w", err)
	}
	order.Consumptions = nil
	return order, nil
}

func (t *mysqlTx) GetOutboundOrder(ctx context.Context, id int64) (domain.OutboundOrder, error) {
	var o domain.OutboundOrder
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, product_id, branch_id, quantity, user_id, created_at
		FROM outbound_orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.ProductID, &o.BranchID, &o.Quantity, &o.UserID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OutboundOrder{}, fmt.Errorf("%w: outbound order %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.OutboundOrder{}, fmt.Errorf("query outbound order: %w", err)
	}
	return o, nil
}

func (t *mysqlTx) ListOutboundOrders(ctx context.Context, query domain.OrderQuery) ([]domain.OutboundOrder, error) {
	if query.BranchIDs != nil && len(query.BranchIDs) == 0 {
		return []domain.OutboundOrder{}, nil
	}

	q, args := orderListQuery("outbound_orders", query)
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbound orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.OutboundOrder{}
	for rows.Next() {
		var o domain.OutboundOrder
		if err := rows.Scan(&o.ID, &o.ProductID, &o.BranchID, &o.Quantity, &o.UserID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbound order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbound orders: %w", err)
	}
	return orders, nil
}

func (t *mysqlTx) CreateLotConsumptions(ctx context.Context, outboundOrderID int64, plan []domain.LotConsumption) error {
	if len(plan) == 0 {
		return nil
	}

	values := make([]string, 0, len(plan))
	args := make([]any, 0, len(plan)*5)
	for i, c := range plan {
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, outboundOrderID, i, c.LotID, c.InboundOrderID, c.Quantity)
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO lot_consumptions (outbound_order_id, seq, lot_id, inbound_order_id, quantity)
		VALUES `+strings.Join(values, ", "), args...)
	if err != nil {
		return fmt.Errorf("insert consumptions: %w", err)
	}
	return nil
}

func (t *mysqlTx) ListLotConsumptions(ctx context.Context, outboundOrderID int64) ([]domain.LotConsumption, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT lot_id, inbound_order_id, quantity
		FROM lot_consumptions
		WHERE outbound_order_id = ?
		ORDER BY seq ASC`, outboundOrderID)
	if err != nil {
		return nil, fmt.Errorf("query consumptions: %w", err)
	}
	defer rows.Close()

	var plan []domain.LotConsumption
	for rows.Next() {
		var c domain.LotConsumption
		if err := rows.Scan(&c.LotID, &c.InboundOrderID, &c.Quantity); err != nil {
			return nil, fmt.Errorf("scan consumption: %w", err)
		}
		plan = append(plan, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consumptions: %w", err)
	}
	return plan, nil
}

func scanLot(row rowScanner) (domain.StockLot, error) {
	var (
		lot         domain.StockLot
		status      string
		inspectedAt sql.NullTime
		inspectedBy sql.NullInt64
	)
	err := row.Scan(&lot.ID, &lot.ProductID, &lot.BranchID, &lot.InboundOrderID, &lot.Quantity, &status,
		&lot.CreatedAt, &inspectedAt, &inspectedBy, &lot.CreatedBy)
	if err != nil {
		return domain.StockLot{}, err
	}

	lot.Status = domain.LotStatus(status)
	if inspectedAt.Valid {
		t := inspectedAt.Time
		lot.InspectedAt = &t
	}
	if inspectedBy.Valid {
		by := inspectedBy.Int64
		lot.InspectedBy = &by
	}
	return lot, nil
}

func orderListQuery(table string, query domain.OrderQuery) (string, []any) {
	q := `SELECT id, product_id, branch_id, quantity, user_id, created_at FROM ` + table
	var args []any
	if query.BranchIDs != nil {
		q += ` WHERE branch_id IN (` + placeholders(len(query.BranchIDs)) + `)`
		for _, id := range query.BranchIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY id DESC`
	return withPage(q, args, query.Offset, query.Limit)
}

func withPage(query string, args []any, offset, limit int) (string, []any) {
	switch {
	case limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, max(offset, 0))
	case offset > 0:
		// MySQL has no OFFSET without LIMIT
		query += ` LIMIT 18446744073709551615 OFFSET ?`
		args = append(args, offset)
	}
	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
