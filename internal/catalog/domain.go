package catalog

import "time"

// Product is a sellable item. When TrackVariants is set the product's own
// quantity fields are informational and each variant carries its own stock.
type Product struct {
	ID                int64      `json:"id"`
	StoreID           int64      `json:"store_id"`
	SKU               string     `json:"sku"`
	Name              string     `json:"name"`
	TrackVariants     bool       `json:"track_variants"`
	Quantity          int64      `json:"quantity"`
	LowStockThreshold int64      `json:"low_stock_threshold"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}

// Variant is one concrete option of a product, with its own stock unit.
type Variant struct {
	ID                int64      `json:"id"`
	ProductID         int64      `json:"product_id"`
	SKU               string     `json:"sku"`
	Name              string     `json:"name"`
	Quantity          int64      `json:"quantity"`
	LowStockThreshold int64      `json:"low_stock_threshold"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}
