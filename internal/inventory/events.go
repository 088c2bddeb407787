package inventory

import (
	"context"
	"time"
)

// LowStockEvent describes a stock unit crossing from IN_STOCK down into
// LOW_STOCK or OUT_OF_STOCK. It fires only on the crossing itself, not while
// the unit remains low.
type LowStockEvent struct {
	StoreID    int64       `json:"store_id"`
	ProductID  int64       `json:"product_id"`
	VariantID  *int64      `json:"variant_id,omitempty"`
	SKU        string      `json:"sku"`
	Quantity   int64       `json:"quantity"`
	Threshold  int64       `json:"threshold"`
	Status     StockStatus `json:"status"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// AlertHandler receives low-stock crossing events for operator notification.
type AlertHandler interface {
	HandleLowStockCrossing(ctx context.Context, evt LowStockEvent) error
}
