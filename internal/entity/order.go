package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	OrderDate time.Time `json:"order_date"`
}

// OrderDetail is an order joined with the product it was placed for.
type OrderDetail struct {
	Order
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
}

// OrderEvent is the payload published after an order commits.
type OrderEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"` // e.g., "created"
	OrderID   int64     `json:"order_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	OrderDate time.Time `json:"order_date"`
}

/*
Mysql Table

CREATE TABLE orders (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	product_id BIGINT NOT NULL,
	quantity INT NOT NULL,
	order_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CONSTRAINT fk_orders_product FOREIGN KEY (product_id) REFERENCES products(id),
	CONSTRAINT chk_orders_quantity CHECK (quantity > 0)
);
*/
