package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the ledger relations. Users live outside the ledger, so
// user ids are plain columns.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS branches (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		location VARCHAR(255) NOT NULL DEFAULT '',
		UNIQUE KEY uq_branches_name (name)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description VARCHAR(1024) NOT NULL DEFAULT '',
		branch_id BIGINT NOT NULL,
		CONSTRAINT fk_products_branch FOREIGN KEY (branch_id) REFERENCES branches (id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS inbound_orders (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		branch_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		user_id BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		CONSTRAINT fk_inbound_product FOREIGN KEY (product_id) REFERENCES products (id),
		CONSTRAINT fk_inbound_branch FOREIGN KEY (branch_id) REFERENCES branches (id),
		KEY idx_inbound_branch (branch_id, id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS outbound_orders (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		branch_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		user_id BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		CONSTRAINT fk_outbound_product FOREIGN KEY (product_id) REFERENCES products (id),
		CONSTRAINT fk_outbound_branch FOREIGN KEY (branch_id) REFERENCES branches (id),
		KEY idx_outbound_branch (branch_id, id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS stock_lots (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		branch_id BIGINT NOT NULL,
		inbound_order_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		status ENUM('PENDING', 'AVAILABLE', 'QUARANTINED') NOT NULL DEFAULT 'PENDING',
		created_at DATETIME(6) NOT NULL,
		inspected_at DATETIME(6) NULL,
		inspected_by BIGINT NULL,
		created_by BIGINT NOT NULL,
		CONSTRAINT chk_stock_lots_quantity CHECK (quantity >= 0),
		CONSTRAINT fk_lots_product FOREIGN KEY (product_id) REFERENCES products (id),
		CONSTRAINT fk_lots_branch FOREIGN KEY (branch_id) REFERENCES branches (id),
		CONSTRAINT fk_lots_inbound FOREIGN KEY (inbound_order_id) REFERENCES inbound_orders (id),
		KEY idx_stock_lots_fifo (product_id, branch_id, status, created_at, id),
		KEY idx_stock_lots_status (status, created_at, id)
	) ENGINE=InnoDB`,

	// lot_id is historical: exhausted lots are deleted
	`CREATE TABLE IF NOT EXISTS lot_consumptions (
		outbound_order_id BIGINT NOT NULL,
		seq INT NOT NULL,
		lot_id BIGINT NOT NULL,
		inbound_order_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		PRIMARY KEY (outbound_order_id, seq),
		CONSTRAINT fk_consumptions_outbound FOREIGN KEY (outbound_order_id) REFERENCES outbound_orders (id),
		CONSTRAINT fk_consumptions_inbound FOREIGN KEY (inbound_order_id) REFERENCES inbound_orders (id)
	) ENGINE=InnoDB`,
}

// Migrate creates any missing ledger tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
