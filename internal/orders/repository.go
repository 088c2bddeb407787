package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-commerce/tradewind/internal/platform/db"
)

// ErrNotFound indicates the order does not exist for the store.
var ErrNotFound = errors.New("orders: not found")

// Repository abstracts order persistence for the service.
type Repository interface {
	Create(ctx context.Context, order Order) (int64, error)
	Get(ctx context.Context, storeID, id int64) (*Order, error)
	TransitionStatus(ctx context.Context, storeID, id int64, from, to OrderStatus, at time.Time) error
}

// SQLRepository persists orders in PostgreSQL.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs SQLRepository.
func NewRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

// Create inserts the order and its items in one transaction.
func (r *SQLRepository) Create(ctx context.Context, order Order) (int64, error) {
	var orderID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO orders (store_id, number, status, total_cents, currency, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
			order.StoreID, order.Number, string(order.Status), order.TotalCents, order.Currency, order.Note, order.CreatedBy).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for _, item := range order.Items {
			if _, err := tx.Exec(ctx, `INSERT INTO order_items (order_id, product_id, variant_id, sku, quantity, unit_price_cents)
VALUES ($1,$2,$3,$4,$5,$6)`, orderID, item.ProductID, item.VariantID, item.SKU, item.Quantity, item.UnitPriceCents); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return orderID, nil
}

// Get fetches an order with its items, store-scoped.
func (r *SQLRepository) Get(ctx context.Context, storeID, id int64) (*Order, error) {
	var order Order
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, store_id, number, status, total_cents, currency, note, created_by, confirmed_at, cancelled_at, refunded_at, created_at, updated_at
FROM orders WHERE id = $1 AND store_id = $2`, id, storeID).
		Scan(&order.ID, &order.StoreID, &order.Number, &status, &order.TotalCents, &order.Currency, &order.Note,
			&order.CreatedBy, &order.ConfirmedAt, &order.CancelledAt, &order.RefundedAt, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	order.Status = OrderStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, variant_id, sku, quantity, unit_price_cents
FROM order_items WHERE order_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.SKU, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	return &order, rows.Err()
}

// TransitionStatus moves the order between statuses, guarded so a concurrent
// transition cannot be overwritten.
func (r *SQLRepository) TransitionStatus(ctx context.Context, storeID, id int64, from, to OrderStatus, at time.Time) error {
	column := ""
	switch to {
	case OrderStatusConfirmed:
		column = "confirmed_at"
	case OrderStatusCancelled:
		column = "cancelled_at"
	case OrderStatusRefunded:
		column = "refunded_at"
	}
	query := `UPDATE orders SET status = $1, updated_at = NOW()`
	if column != "" {
		query += fmt.Sprintf(", %s = $5", column)
	}
	query += ` WHERE id = $2 AND store_id = $3 AND status = $4`

	args := []any{string(to), id, storeID, string(from)}
	if column != "" {
		args = append(args, at)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d not in status %s", ErrNotFound, id, from)
	}
	return nil
}
