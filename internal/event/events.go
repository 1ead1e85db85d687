package event

import (
	"time"

	"github.com/farmgate-io/farmgate/internal/entity"
)

// OrderStatusChanged is published whenever an order enters a new status.
// PreviousStatus is nil for the initial transition into pending.
type OrderStatusChanged struct {
	OrderID        string              `json:"order_id"`
	PreviousStatus *entity.OrderStatus `json:"previous_status"`
	NewStatus      entity.OrderStatus  `json:"new_status"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

// ExportRequested queues a background CSV export of the order book.
type ExportRequested struct {
	Filename    string    `json:"filename"`
	RequestedAt time.Time `json:"requested_at"`
}
