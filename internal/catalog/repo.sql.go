package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-commerce/tradewind/internal/inventory"
)

// ErrNotFound indicates the product or variant does not exist for the store.
var ErrNotFound = errors.New("catalog: not found")

// Repository reads store/product/variant identity from PostgreSQL. Every query
// is store-scoped; rows owned by other stores are invisible.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProduct fetches one product for the store.
func (r *Repository) GetProduct(ctx context.Context, storeID, productID int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, store_id, sku, name, track_variants, quantity, low_stock_threshold, status, created_at, updated_at, deleted_at
FROM products
WHERE id = $1 AND store_id = $2 AND deleted_at IS NULL`, productID, storeID).
		Scan(&p.ID, &p.StoreID, &p.SKU, &p.Name, &p.TrackVariants, &p.Quantity, &p.LowStockThreshold, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	return p, err
}

// ListVariants fetches the live variants of a product for the store.
func (r *Repository) ListVariants(ctx context.Context, storeID, productID int64) ([]Variant, error) {
	rows, err := r.pool.Query(ctx, `SELECT v.id, v.product_id, v.sku, v.name, v.quantity, v.low_stock_threshold, v.status, v.created_at, v.updated_at, v.deleted_at
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.product_id = $1 AND p.store_id = $2 AND v.deleted_at IS NULL AND p.deleted_at IS NULL
ORDER BY v.id ASC`, productID, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	variants := []Variant{}
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Quantity, &v.LowStockThreshold, &v.Status, &v.CreatedAt, &v.UpdatedAt, &v.DeletedAt); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// ResolveSKUs maps bare SKUs to stock unit references in one batched lookup.
// Product-level SKUs resolve only when the product tracks stock itself;
// variant SKUs always resolve to their variant. Unknown SKUs are simply absent
// from the result.
func (r *Repository) ResolveSKUs(ctx context.Context, storeID int64, skus []string) (map[string]inventory.UnitRef, error) {
	result := make(map[string]inventory.UnitRef, len(skus))
	if len(skus) == 0 {
		return result, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT sku, product_id, variant_id FROM (
  SELECT p.sku, p.id AS product_id, NULL::bigint AS variant_id
  FROM products p
  WHERE p.store_id = $1 AND NOT p.track_variants AND p.deleted_at IS NULL AND p.sku = ANY($2)
  UNION ALL
  SELECT v.sku, v.product_id, v.id
  FROM product_variants v
  JOIN products p ON p.id = v.product_id
  WHERE p.store_id = $1 AND v.deleted_at IS NULL AND p.deleted_at IS NULL AND v.sku = ANY($2)
) units`, storeID, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sku string
		var ref inventory.UnitRef
		if err := rows.Scan(&sku, &ref.ProductID, &ref.VariantID); err != nil {
			return nil, err
		}
		result[sku] = ref
	}
	return result, rows.Err()
}
