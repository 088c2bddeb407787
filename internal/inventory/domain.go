package inventory

import (
	"errors"
	"fmt"
	"time"
)

// AdjustmentType enumerates supported stock mutations.
type AdjustmentType string

const (
	// AdjustmentAdd increases the quantity by the requested amount.
	AdjustmentAdd AdjustmentType = "ADD"
	// AdjustmentRemove decreases the quantity, never below zero.
	AdjustmentRemove AdjustmentType = "REMOVE"
	// AdjustmentSet replaces the quantity with the requested amount.
	AdjustmentSet AdjustmentType = "SET"
)

// StockStatus is derived from quantity versus threshold, never set directly.
type StockStatus string

const (
	StatusInStock    StockStatus = "IN_STOCK"
	StatusLowStock   StockStatus = "LOW_STOCK"
	StatusOutOfStock StockStatus = "OUT_OF_STOCK"
)

// DeriveStatus computes the stock status for a quantity/threshold pair.
// Recomputed on every write; a stored status is never trusted as input.
func DeriveStatus(quantity, threshold int64) StockStatus {
	switch {
	case quantity == 0:
		return StatusOutOfStock
	case quantity <= threshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// ReasonCode classifies why a quantity changed. The set is closed.
type ReasonCode string

const (
	ReasonOrderCreated     ReasonCode = "order_created"
	ReasonOrderCancelled   ReasonCode = "order_cancelled"
	ReasonReturnProcessed  ReasonCode = "return_processed"
	ReasonManualAdjustment ReasonCode = "manual_adjustment"
	ReasonRestock          ReasonCode = "restock"
	ReasonDamaged          ReasonCode = "damaged"
	ReasonLost             ReasonCode = "lost"
	ReasonFound            ReasonCode = "found"
	ReasonStockTransfer    ReasonCode = "stock_transfer"
	ReasonInventoryCount   ReasonCode = "inventory_count"
	ReasonExpired          ReasonCode = "expired"
	ReasonTheft            ReasonCode = "theft"
	ReasonExternalSync     ReasonCode = "external_sync"
)

var reasonLabels = map[ReasonCode]string{
	ReasonOrderCreated:     "Order created",
	ReasonOrderCancelled:   "Order cancelled",
	ReasonReturnProcessed:  "Return processed",
	ReasonManualAdjustment: "Manual adjustment",
	ReasonRestock:          "Restock",
	ReasonDamaged:          "Damaged",
	ReasonLost:             "Lost",
	ReasonFound:            "Found",
	ReasonStockTransfer:    "Stock transfer",
	ReasonInventoryCount:   "Inventory count",
	ReasonExpired:          "Expired",
	ReasonTheft:            "Theft",
	ReasonExternalSync:     "External sync",
}

// Valid reports whether the reason belongs to the closed set.
func (r ReasonCode) Valid() bool {
	_, ok := reasonLabels[r]
	return ok
}

// Label returns the display label for operator-facing surfaces.
func (r ReasonCode) Label() string {
	if label, ok := reasonLabels[r]; ok {
		return label
	}
	return string(r)
}

// UnitRef identifies one stock unit: a product tracked at product level
// (VariantID nil) or one specific variant.
type UnitRef struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
}

func (r UnitRef) String() string {
	if r.VariantID != nil {
		return fmt.Sprintf("product %d variant %d", r.ProductID, *r.VariantID)
	}
	return fmt.Sprintf("product %d", r.ProductID)
}

// StockUnit is the authoritative quantity record for one sellable unit.
type StockUnit struct {
	Ref               UnitRef     `json:"ref"`
	SKU               string      `json:"sku"`
	Quantity          int64       `json:"quantity"`
	LowStockThreshold int64       `json:"low_stock_threshold"`
	Status            StockStatus `json:"status"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// LedgerEntry is one immutable record per successful adjustment.
type LedgerEntry struct {
	ID          int64      `json:"id"`
	StoreID     int64      `json:"store_id"`
	ProductID   int64      `json:"product_id"`
	VariantID   *int64     `json:"variant_id,omitempty"`
	PreviousQty int64      `json:"previous_qty"`
	NewQty      int64      `json:"new_qty"`
	ChangeQty   int64      `json:"change_qty"`
	Reason      ReasonCode `json:"reason"`
	Note        string     `json:"note,omitempty"`
	ActorID     *int64     `json:"actor_id,omitempty"`
	OrderID     *int64     `json:"order_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AdjustmentRequest is the transient input to the engine.
type AdjustmentRequest struct {
	Ref      UnitRef
	Quantity int64
	Type     AdjustmentType
	Reason   ReasonCode
	Note     string
	ActorID  *int64
	OrderID  *int64
}

// OrderLine is one line item supplied by the order subsystem.
type OrderLine struct {
	ProductID int64
	VariantID *int64
	Quantity  int64
}

// LevelsFilter narrows inventory level listings.
type LevelsFilter struct {
	LowStockOnly bool
	Limit        int
	Offset       int
}

// LedgerFilter narrows ledger history reads.
type LedgerFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// ErrInvalidInput indicates a malformed request, rejected before any transaction starts.
var ErrInvalidInput = errors.New("inventory: invalid input")

// ErrNotFound indicates the stock unit does not exist for the requesting store.
// A unit owned by another store is reported identically.
var ErrNotFound = errors.New("inventory: stock unit not found")

// ErrTransactionConflict indicates the adjustment lost a concurrency race; callers may retry.
var ErrTransactionConflict = errors.New("inventory: transaction conflict")

// InsufficientStockError is returned when a removal would drive quantity negative.
type InsufficientStockError struct {
	Ref       UnitRef
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s: available %d, requested %d", e.Ref, e.Available, e.Requested)
}
