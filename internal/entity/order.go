package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusCanceled  OrderStatus = "canceled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// StatusHistoryEntry records one status change. Entries are append-only.
type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// ProductSnapshot freezes the descriptive fields of a product at order time.
type ProductSnapshot struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	Image       string          `json:"image"`
}

// Order is the aggregate root for a customer's purchase.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string               `bun:"id,pk"`
	UserID          int64                `bun:"user_id,notnull"`
	TotalAmount     decimal.Decimal      `bun:"total_amount,notnull,type:decimal(10,2)"`
	Status          OrderStatus          `bun:"status,notnull"`
	TransactionRef  string               `bun:"transaction_ref"`
	PublicKeyRef    string               `bun:"public_key_ref"`
	PaymentDeadline time.Time            `bun:"payment_deadline,notnull"`
	Metadata        map[string]any       `bun:"metadata,type:jsonb"`
	StatusHistory   []StatusHistoryEntry `bun:"status_history,type:jsonb"`
	Items           []*OrderItem         `bun:"rel:has-many,join:id=order_id"`
	CreatedAt       time.Time            `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time            `bun:"updated_at,nullzero"`
	DeletedAt       time.Time            `bun:"deleted_at,soft_delete,nullzero"`
}

// History returns the status history, never nil.
func (o *Order) History() []StatusHistoryEntry {
	if o.StatusHistory == nil {
		return []StatusHistoryEntry{}
	}
	return o.StatusHistory
}

// OrderItem is one product line within an order, priced at order time.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID              string          `bun:"id,pk"`
	OrderID         string          `bun:"order_id,notnull"`
	ProductID       string          `bun:"product_id,notnull"`
	Quantity        int             `bun:"quantity,notnull"`
	PricePerUnit    decimal.Decimal `bun:"price_per_unit,notnull,type:decimal(10,2)"`
	TotalPrice      decimal.Decimal `bun:"total_price,notnull,type:decimal(10,2)"`
	ProductSnapshot ProductSnapshot `bun:"product_snapshot,type:jsonb"`
}
