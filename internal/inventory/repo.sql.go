package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-commerce/tradewind/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL. Stock units live on the
// products and product_variants rows themselves; the ledger is its own table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetUnitForUpdate(ctx context.Context, storeID int64, ref UnitRef) (StockUnit, error)
	UpdateUnit(ctx context.Context, storeID int64, ref UnitRef, quantity int64, status StockStatus) error
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction. Row locks
// taken via GetUnitForUpdate serialize concurrent adjustments per unit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if errors.Is(err, db.ErrSerialization) {
		return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
	}
	return err
}

func (r *txRepository) GetUnitForUpdate(ctx context.Context, storeID int64, ref UnitRef) (StockUnit, error) {
	unit := StockUnit{Ref: ref}
	var err error
	if ref.VariantID != nil {
		// The variant row is authoritative; the parent only supplies the tenant check.
		err = r.tx.QueryRow(ctx, `SELECT v.sku, v.quantity, v.low_stock_threshold, v.updated_at
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.id = $1 AND v.product_id = $2 AND p.store_id = $3
  AND v.deleted_at IS NULL AND p.deleted_at IS NULL
FOR UPDATE OF v`, *ref.VariantID, ref.ProductID, storeID).
			Scan(&unit.SKU, &unit.Quantity, &unit.LowStockThreshold, &unit.UpdatedAt)
	} else {
		err = r.tx.QueryRow(ctx, `SELECT p.sku, p.quantity, p.low_stock_threshold, p.updated_at
FROM products p
WHERE p.id = $1 AND p.store_id = $2 AND NOT p.track_variants AND p.deleted_at IS NULL
FOR UPDATE`, ref.ProductID, storeID).
			Scan(&unit.SKU, &unit.Quantity, &unit.LowStockThreshold, &unit.UpdatedAt)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockUnit{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return StockUnit{}, err
	}
	unit.Status = DeriveStatus(unit.Quantity, unit.LowStockThreshold)
	return unit, nil
}

func (r *txRepository) UpdateUnit(ctx context.Context, storeID int64, ref UnitRef, quantity int64, status StockStatus) error {
	var id int64
	var err error
	if ref.VariantID != nil {
		err = r.tx.QueryRow(ctx, `UPDATE product_variants v SET quantity = $1, status = $2, updated_at = NOW()
FROM products p
WHERE v.id = $3 AND v.product_id = $4 AND p.id = v.product_id AND p.store_id = $5
RETURNING v.id`, quantity, string(status), *ref.VariantID, ref.ProductID, storeID).Scan(&id)
	} else {
		err = r.tx.QueryRow(ctx, `UPDATE products SET quantity = $1, status = $2, updated_at = NOW()
WHERE id = $3 AND store_id = $4
RETURNING id`, quantity, string(status), ref.ProductID, storeID).Scan(&id)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return err
}

func (r *txRepository) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_ledger
(store_id, product_id, variant_id, previous_qty, new_qty, change_qty, reason, note, actor_id, order_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
RETURNING id`, entry.StoreID, entry.ProductID, entry.VariantID, entry.PreviousQty, entry.NewQty,
		entry.ChangeQty, string(entry.Reason), entry.Note, entry.ActorID, entry.OrderID).Scan(&id)
	return id, err
}

// ListLevels returns stock units for a store: product-level units plus every
// variant-level unit, one row each.
func (r *Repository) ListLevels(ctx context.Context, storeID int64, filter LevelsFilter) ([]StockUnit, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT product_id, variant_id, sku, quantity, low_stock_threshold, status, updated_at FROM (
  SELECT p.id AS product_id, NULL::bigint AS variant_id, p.sku, p.quantity, p.low_stock_threshold, p.status, p.updated_at
  FROM products p
  WHERE p.store_id = $1 AND NOT p.track_variants AND p.deleted_at IS NULL
  UNION ALL
  SELECT v.product_id, v.id, v.sku, v.quantity, v.low_stock_threshold, v.status, v.updated_at
  FROM product_variants v
  JOIN products p ON p.id = v.product_id
  WHERE p.store_id = $1 AND v.deleted_at IS NULL AND p.deleted_at IS NULL
) units`
	if filter.LowStockOnly {
		query += ` WHERE status IN ('LOW_STOCK','OUT_OF_STOCK')`
	}
	query += ` ORDER BY sku ASC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, storeID, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	units := []StockUnit{}
	for rows.Next() {
		var unit StockUnit
		var status string
		if err := rows.Scan(&unit.Ref.ProductID, &unit.Ref.VariantID, &unit.SKU, &unit.Quantity, &unit.LowStockThreshold, &status, &unit.UpdatedAt); err != nil {
			return nil, err
		}
		unit.Status = StockStatus(status)
		units = append(units, unit)
	}
	return units, rows.Err()
}

// ListLedger returns the ledger history for one stock unit in creation order.
func (r *Repository) ListLedger(ctx context.Context, storeID int64, ref UnitRef, filter LedgerFilter) ([]LedgerEntry, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, store_id, product_id, variant_id, previous_qty, new_qty, change_qty, reason, note, actor_id, order_id, created_at
FROM inventory_ledger
WHERE store_id = $1 AND product_id = $2 AND variant_id IS NOT DISTINCT FROM $3
  AND created_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY id ASC
LIMIT $6`, storeID, ref.ProductID, ref.VariantID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var entry LedgerEntry
		var reason string
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ProductID, &entry.VariantID, &entry.PreviousQty, &entry.NewQty,
			&entry.ChangeQty, &reason, &entry.Note, &entry.ActorID, &entry.OrderID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Reason = ReasonCode(reason)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
