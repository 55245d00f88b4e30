package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "migrations").Logger()

// RetryInterval is the pause between failed attempts.
var RetryInterval = time.Second

const productsTable = `
	CREATE TABLE IF NOT EXISTS products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price DECIMAL(10,2) NOT NULL,
		image_url VARCHAR(1024) NOT NULL DEFAULT '',
		stock INT NOT NULL DEFAULT 0,
		description TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT chk_products_stock CHECK (stock >= 0)
	);
`

const ordersTable = `
	CREATE TABLE IF NOT EXISTS orders (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		order_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_orders_product FOREIGN KEY (product_id) REFERENCES products(id),
		CONSTRAINT chk_orders_quantity CHECK (quantity > 0)
	);
`

// AutoMigrate creates the products and orders tables if they do not exist.
// Products must come first because orders references it.
func AutoMigrate(ctx context.Context, db *sql.DB, retries int) error {
	if err := AutoMigrateProducts(ctx, db, retries); err != nil {
		return err
	}
	return AutoMigrateOrders(ctx, db, retries)
}

// AutoMigrateProducts creates the products table if it does not exist.
func AutoMigrateProducts(ctx context.Context, db *sql.DB, retries int) error {
	return execWithRetry(ctx, db, "products", productsTable, retries)
}

// AutoMigrateOrders creates the orders table if it does not exist.
func AutoMigrateOrders(ctx context.Context, db *sql.DB, retries int) error {
	return execWithRetry(ctx, db, "orders", ordersTable, retries)
}

func execWithRetry(ctx context.Context, db *sql.DB, table, query string, retries int) error {
	_, err := db.ExecContext(ctx, query)
	for i := 0; err != nil && i < retries; i++ {
		logger.Warn().Err(err).Msgf("Retry %d: failed to migrate %s table", i+1, table)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(RetryInterval):
		}
		_, err = db.ExecContext(ctx, query)
	}
	if err != nil {
		return fmt.Errorf("migrate %s table: %w", table, err)
	}
	return nil
}
