package orders

import "time"

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Order is a storefront order. Stock is reserved when the order transitions
// DRAFT -> CONFIRMED and returned on cancellation or refund.
type Order struct {
	ID          int64       `json:"id"`
	StoreID     int64       `json:"store_id"`
	Number      string      `json:"number"`
	Status      OrderStatus `json:"status"`
	TotalCents  int64       `json:"total_cents"`
	Currency    string      `json:"currency"`
	Note        *string     `json:"note,omitempty"`
	CreatedBy   int64       `json:"created_by"`
	ConfirmedAt *time.Time  `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time  `json:"refunded_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Items       []OrderItem `json:"items,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID             int64  `json:"id"`
	OrderID        int64  `json:"order_id"`
	ProductID      int64  `json:"product_id"`
	VariantID      *int64 `json:"variant_id,omitempty"`
	SKU            string `json:"sku"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}
