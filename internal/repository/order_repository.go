package repository

import (
	"context"
	"database/sql"

	"storefront/internal/database"
	"storefront/internal/entity"
)

// OrderTx is the set of statements available inside an order placement
// transaction.
type OrderTx interface {
	// DecrementStockIfAvailable reports whether a row with enough stock was
	// decremented. It does not tell a missing product from a short one.
	DecrementStockIfAvailable(ctx context.Context, productID int64, quantity int) (bool, error)
	// LockProductStock reads the stock under a row lock held until the
	// transaction ends.
	LockProductStock(ctx context.Context, productID int64) (int, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	InsertOrder(ctx context.Context, order *entity.Order) error
}

type OrderRepository struct {
	pool *database.Pool
}

func NewOrderRepository(pool *database.Pool) *OrderRepository {
	return &OrderRepository{pool}
}

// WithinTx borrows one session, runs fn in a transaction on it and releases
// the session whatever the result.
func (r *OrderRepository) WithinTx(ctx context.Context, fn func(tx OrderTx) error) error {
	return r.pool.WithSession(ctx, func(s *database.Session) error {
		return s.RunInTransaction(ctx, func(tx *sql.Tx) error {
			return fn(NewOrderTx(tx))
		})
	})
}

func scanOrderDetail(row rowScanner, o *entity.OrderDetail) error {
	var imageURL sql.NullString
	if err := row.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.OrderDate, &o.ProductName, &o.Price, &imageURL); err != nil {
		return err
	}
	o.ImageURL = imageURL.String
	return nil
}

func (r *OrderRepository) GetOrders(ctx context.Context) ([]entity.OrderDetail, error) {
	query := `SELECT o.id, o.product_id, o.quantity, o.order_date, p.name, p.price, p.image_url
		FROM orders o JOIN products p ON p.id = o.product_id
		ORDER BY o.order_date DESC, o.id DESC`
	rows, err := r.pool.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, translate("list orders", err)
	}
	defer rows.Close()

	orders := []entity.OrderDetail{}
	for rows.Next() {
		var o entity.OrderDetail
		if err := scanOrderDetail(rows, &o); err != nil {
			return nil, translate("scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list orders", err)
	}

	return orders, nil
}

func (r *OrderRepository) GetOrderByID(ctx context.Context, id int64) (*entity.OrderDetail, error) {
	query := `SELECT o.id, o.product_id, o.quantity, o.order_date, p.name, p.price, p.image_url
		FROM orders o JOIN products p ON p.id = o.product_id
		WHERE o.id = ?`

	o := &entity.OrderDetail{}
	if err := scanOrderDetail(r.pool.DB().QueryRowContext(ctx, query, id), o); err != nil {
		return nil, translate("get order", err)
	}

	return o, nil
}

type orderTx struct {
	tx DBTX
}

func NewOrderTx(tx DBTX) OrderTx {
	return &orderTx{tx}
}

func (t *orderTx) DecrementStockIfAvailable(ctx context.Context, productID int64, quantity int) (bool, error) {
	query := `UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`
	res, err := t.tx.ExecContext(ctx, query, quantity, productID, quantity)
	if err != nil {
		return false, translate("decrement stock", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, translate("decrement stock", err)
	}

	return affected == 1, nil
}

func (t *orderTx) LockProductStock(ctx context.Context, productID int64) (int, error) {
	query := `SELECT stock FROM products WHERE id = ? FOR UPDATE`

	var stock int
	if err := t.tx.QueryRowContext(ctx, query, productID).Scan(&stock); err != nil {
		return 0, translate("lock product", err)
	}

	return stock, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	query := `UPDATE products SET stock = stock - ? WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, query, quantity, productID)
	if err != nil {
		return translate("decrement stock", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return translate("decrement stock", err)
	}
	if affected != 1 {
		return entity.Infra("decrement stock", sql.ErrNoRows)
	}

	return nil
}

// InsertOrder stamps the order date with the server clock and fills in the
// assigned id.
func (t *orderTx) InsertOrder(ctx context.Context, order *entity.Order) error {
	query := `INSERT INTO orders (product_id, quantity, order_date) VALUES (?, ?, NOW())`
	res, err := t.tx.ExecContext(ctx, query, order.ProductID, order.Quantity)
	if err != nil {
		return translate("insert order", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return translate("insert order", err)
	}
	order.ID = id

	err = t.tx.QueryRowContext(ctx, `SELECT order_date FROM orders WHERE id = ?`, id).Scan(&order.OrderDate)
	if err != nil {
		return translate("insert order", err)
	}

	return nil
}
