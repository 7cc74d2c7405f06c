package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Product is one catalog row. Only these four fields are exposed so the
// prompt context stays small.
type Product struct {
	Name  string  `json:"name"`
	Stock float64 `json:"stock"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

// Transaction is a persisted sale header with its dependent item rows.
type Transaction struct {
	ID           string            `json:"id"`
	CustomerName *string           `json:"customer_name"`
	IsDebt       bool              `json:"is_debt"`
	TotalAmount  float64           `json:"total_amount"`
	CreatedAt    time.Time         `json:"created_at"`
	Items        []TransactionItem `json:"transaction_items"`
}

// TransactionItem is one line item referencing its parent transaction.
type TransactionItem struct {
	TransactionID string  `json:"transaction_id"`
	ProductName   string  `json:"product_name"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
}
