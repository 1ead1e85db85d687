package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/farmgate-io/farmgate/internal/entity"
)

// OrderItemResponse represents one order line as exposed via transport layers.
type OrderItemResponse struct {
	ID              string                 `json:"id"`
	ProductID       string                 `json:"product_id"`
	Quantity        int                    `json:"quantity"`
	PricePerUnit    decimal.Decimal        `json:"price_per_unit"`
	TotalPrice      decimal.Decimal        `json:"total_price"`
	ProductSnapshot entity.ProductSnapshot `json:"product_snapshot"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID              string                      `json:"id"`
	UserID          int64                       `json:"user_id"`
	TotalAmount     decimal.Decimal             `json:"total_amount"`
	Status          entity.OrderStatus          `json:"status"`
	TransactionRef  string                      `json:"transaction_ref,omitempty"`
	PublicKeyRef    string                      `json:"public_key_ref,omitempty"`
	PaymentDeadline time.Time                   `json:"payment_deadline"`
	Metadata        map[string]any              `json:"metadata,omitempty"`
	StatusHistory   []entity.StatusHistoryEntry `json:"status_history"`
	Items           []OrderItemResponse         `json:"items"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// FromOrder maps an order aggregate onto its transport shape.
func FromOrder(order *entity.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PricePerUnit:    item.PricePerUnit,
			TotalPrice:      item.TotalPrice,
			ProductSnapshot: item.ProductSnapshot,
		})
	}
	return OrderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		TotalAmount:     order.TotalAmount,
		Status:          order.Status,
		TransactionRef:  order.TransactionRef,
		PublicKeyRef:    order.PublicKeyRef,
		PaymentDeadline: order.PaymentDeadline,
		Metadata:        order.Metadata,
		StatusHistory:   order.History(),
		Items:           items,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

// FromOrders maps a slice of orders.
func FromOrders(orders []*entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, FromOrder(order))
	}
	return out
}
