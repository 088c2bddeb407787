package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradewind-commerce/tradewind/internal/inventory"
)

// ErrInvalidStatus indicates a status transition the workflow does not allow.
var ErrInvalidStatus = errors.New("orders: invalid status transition")

// StockService is the slice of the inventory core the order workflow consumes.
type StockService interface {
	DeductStockForOrder(ctx context.Context, storeID int64, items []inventory.OrderLine, orderID int64, actorID *int64) error
	RestoreStockForCancellation(ctx context.Context, storeID int64, items []inventory.OrderLine, orderID int64, actorID *int64) error
	RestoreStockForReturn(ctx context.Context, storeID int64, items []inventory.OrderLine, orderID int64, actorID *int64) error
}

// Service coordinates order workflows.
type Service struct {
	logger *slog.Logger
	repo   Repository
	stock  StockService
	now    func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo Repository, stock StockService) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, stock: stock, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new DRAFT order. No stock moves until confirmation.
func (s *Service) Create(ctx context.Context, storeID int64, req CreateOrderRequest, createdBy int64) (*Order, error) {
	if storeID <= 0 {
		return nil, errors.New("orders: store required")
	}
	order := Order{
		StoreID:   storeID,
		Number:    fmt.Sprintf("ORD-%d", s.now().UnixNano()),
		Status:    OrderStatusDraft,
		Currency:  req.Currency,
		Note:      req.Note,
		CreatedBy: createdBy,
	}
	for _, item := range req.Items {
		order.TotalCents += item.Quantity * item.UnitPriceCents
		order.Items = append(order.Items, OrderItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	orderID, err := s.repo.Create(ctx, order)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, storeID, orderID)
}

// Confirm reserves stock for every line item and only then marks the order
// CONFIRMED. If deduction fails the order stays DRAFT; if the status update
// fails after deduction the stock is returned.
func (s *Service) Confirm(ctx context.Context, storeID, orderID int64, actorID *int64) (*Order, error) {
	order, err := s.repo.Get(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderStatusDraft {
		return nil, fmt.Errorf("%w: cannot confirm %s order", ErrInvalidStatus, order.Status)
	}

	lines := orderLines(order)
	if err := s.stock.DeductStockForOrder(ctx, storeID, lines, orderID, actorID); err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}

	if err := s.repo.TransitionStatus(ctx, storeID, orderID, OrderStatusDraft, OrderStatusConfirmed, s.now()); err != nil {
		// The deduction committed but the order could not be confirmed;
		// put the stock back so the two never diverge.
		if restoreErr := s.stock.RestoreStockForCancellation(ctx, storeID, lines, orderID, actorID); restoreErr != nil {
			s.logger.Error("compensating restore failed",
				slog.Int64("order_id", orderID),
				slog.Any("error", restoreErr))
		}
		return nil, err
	}
	return s.repo.Get(ctx, storeID, orderID)
}

// Cancel cancels the order. Confirmed orders get their stock back before the
// status moves; a failed restore leaves the order CONFIRMED so the caller can
// retry. Draft orders never held any stock.
func (s *Service) Cancel(ctx context.Context, storeID, orderID int64, actorID *int64) (*Order, error) {
	order, err := s.repo.Get(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case OrderStatusDraft, OrderStatusConfirmed:
	default:
		return nil, fmt.Errorf("%w: cannot cancel %s order", ErrInvalidStatus, order.Status)
	}

	lines := orderLines(order)
	if order.Status == OrderStatusConfirmed {
		if err := s.stock.RestoreStockForCancellation(ctx, storeID, lines, orderID, actorID); err != nil {
			return nil, fmt.Errorf("restore stock: %w", err)
		}
	}
	if err := s.repo.TransitionStatus(ctx, storeID, orderID, order.Status, OrderStatusCancelled, s.now()); err != nil {
		if order.Status == OrderStatusConfirmed {
			// The restore committed but the order stayed CONFIRMED; take the
			// stock back out so the two never diverge.
			if deductErr := s.stock.DeductStockForOrder(ctx, storeID, lines, orderID, actorID); deductErr != nil {
				s.logger.Error("compensating deduct failed",
					slog.Int64("order_id", orderID),
					slog.Any("error", deductErr))
			}
		}
		return nil, err
	}
	return s.repo.Get(ctx, storeID, orderID)
}

// Refund processes a return for a confirmed order. Stock comes back first and
// the order only becomes REFUNDED once the restore committed; on restore
// failure the order stays CONFIRMED and the refund can be retried.
func (s *Service) Refund(ctx context.Context, storeID, orderID int64, actorID *int64) (*Order, error) {
	order, err := s.repo.Get(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderStatusConfirmed {
		return nil, fmt.Errorf("%w: cannot refund %s order", ErrInvalidStatus, order.Status)
	}

	lines := orderLines(order)
	if err := s.stock.RestoreStockForReturn(ctx, storeID, lines, orderID, actorID); err != nil {
		return nil, fmt.Errorf("restore stock: %w", err)
	}
	if err := s.repo.TransitionStatus(ctx, storeID, orderID, OrderStatusConfirmed, OrderStatusRefunded, s.now()); err != nil {
		if deductErr := s.stock.DeductStockForOrder(ctx, storeID, lines, orderID, actorID); deductErr != nil {
			s.logger.Error("compensating deduct failed",
				slog.Int64("order_id", orderID),
				slog.Any("error", deductErr))
		}
		return nil, err
	}
	return s.repo.Get(ctx, storeID, orderID)
}

// Get fetches one order, store-scoped.
func (s *Service) Get(ctx context.Context, storeID, orderID int64) (*Order, error) {
	return s.repo.Get(ctx, storeID, orderID)
}

func orderLines(order *Order) []inventory.OrderLine {
	lines := make([]inventory.OrderLine, len(order.Items))
	for i, item := range order.Items {
		lines[i] = inventory.OrderLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
	}
	return lines
}
