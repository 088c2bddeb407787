package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradewind-commerce/tradewind/internal/inventory"
)

type memoryOrders struct {
	mu             sync.Mutex
	orders         map[int64]*Order
	nextID         int64
	transitionErrs map[int64]error
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{orders: map[int64]*Order{}, transitionErrs: map[int64]error{}}
}

func (m *memoryOrders) Create(ctx context.Context, order Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	order.ID = m.nextID
	order.CreatedAt = time.Now()
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}
	copied := order
	m.orders[order.ID] = &copied
	return order.ID, nil
}

func (m *memoryOrders) Get(ctx context.Context, storeID, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.StoreID != storeID {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	copied := *order
	copied.Items = append([]OrderItem(nil), order.Items...)
	return &copied, nil
}

func (m *memoryOrders) TransitionStatus(ctx context.Context, storeID, id int64, from, to OrderStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transitionErrs[id]; err != nil {
		return err
	}
	order, ok := m.orders[id]
	if !ok || order.StoreID != storeID || order.Status != from {
		return fmt.Errorf("%w: order %d not in status %s", ErrNotFound, id, from)
	}
	order.Status = to
	switch to {
	case OrderStatusConfirmed:
		order.ConfirmedAt = &at
	case OrderStatusCancelled:
		order.CancelledAt = &at
	case OrderStatusRefunded:
		order.RefundedAt = &at
	}
	return nil
}

type stockCall struct {
	op      string
	orderID int64
	lines   []inventory.OrderLine
}

type fakeStock struct {
	mu         sync.Mutex
	calls      []stockCall
	deductErr  error
	restoreErr error
}

func (f *fakeStock) record(op string, orderID int64, lines []inventory.OrderLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stockCall{op: op, orderID: orderID, lines: lines})
}

func (f *fakeStock) DeductStockForOrder(ctx context.Context, storeID int64, items []inventory.OrderLine, orderID int64, actorID *int64) error {
	if f.deductErr != nil {
		return f.deductErr
	}
	f.record("deduct", orderID, items)
	return nil
}

func (f *fakeStock) RestoreStockForCancellation(ctx context.Context, storeID int64, items []inventory.OrderLine, orderID int64, actorID *int64) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.record("restore_cancel", orderID, items)
	return nil
}

func (f *fakeStock) RestoreStockForReturn(ctx context.Context, storeID int64, items []inventory.OrderLine, orderID int64, actorID *int64) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.record("restore_return", orderID, items)
	return nil
}

func (f *fakeStock) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.calls))
	for i, call := range f.calls {
		ops[i] = call.op
	}
	return ops
}

func newOrderService(t *testing.T) (*Service, *memoryOrders, *fakeStock) {
	t.Helper()
	repo := newMemoryOrders()
	stock := &fakeStock{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, stock), repo, stock
}

func draftOrder(t *testing.T, svc *Service) *Order {
	t.Helper()
	order, err := svc.Create(context.Background(), 1, CreateOrderRequest{
		Currency: "USD",
		Items: []CreateOrderItemReq{
			{ProductID: 10, SKU: "SKU-A", Quantity: 2, UnitPriceCents: 1500},
			{ProductID: 11, SKU: "SKU-B", Quantity: 1, UnitPriceCents: 900},
		},
	}, 7)
	require.NoError(t, err)
	return order
}

func TestCreateOrder(t *testing.T) {
	svc, _, stock := newOrderService(t)
	order := draftOrder(t, svc)

	require.Equal(t, OrderStatusDraft, order.Status)
	require.Equal(t, int64(2*1500+900), order.TotalCents)
	require.Len(t, order.Items, 2)
	// Draft orders hold no stock.
	require.Empty(t, stock.ops())
}

func TestConfirmOrderDeductsStock(t *testing.T) {
	svc, _, stock := newOrderService(t)
	order := draftOrder(t, svc)

	confirmed, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	require.Equal(t, []string{"deduct"}, stock.ops())
	require.Len(t, stock.calls[0].lines, 2)
	require.Equal(t, int64(2), stock.calls[0].lines[0].Quantity)
}

func TestConfirmFailsWhenStockInsufficient(t *testing.T) {
	svc, repo, stock := newOrderService(t)
	order := draftOrder(t, svc)
	stock.deductErr = &inventory.InsufficientStockError{
		Ref: inventory.UnitRef{ProductID: 11}, Available: 0, Requested: 1,
	}

	_, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// The order stays DRAFT and can be confirmed again later.
	current, err := repo.Get(context.Background(), 1, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusDraft, current.Status)
	require.Empty(t, stock.ops())
}

func TestConfirmCompensatesWhenTransitionFails(t *testing.T) {
	svc, repo, stock := newOrderService(t)
	order := draftOrder(t, svc)
	repo.transitionErrs[order.ID] = errors.New("connection reset")

	_, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	require.Error(t, err)

	// The committed deduction was rolled forward by a compensating restore.
	require.Equal(t, []string{"deduct", "restore_cancel"}, stock.ops())
	current, err := repo.Get(context.Background(), 1, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusDraft, current.Status)
}

func TestConfirmRejectsNonDraft(t *testing.T) {
	svc, _, _ := newOrderService(t)
	order := draftOrder(t, svc)
	_, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), 1, order.ID, nil)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCancelDraftOrderSkipsRestore(t *testing.T) {
	svc, _, stock := newOrderService(t)
	order := draftOrder(t, svc)

	cancelled, err := svc.Cancel(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, cancelled.Status)
	require.Empty(t, stock.ops())
}

func TestCancelConfirmedOrderRestoresStock(t *testing.T) {
	svc, _, stock := newOrderService(t)
	order := draftOrder(t, svc)
	_, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Equal(t, []string{"deduct", "restore_cancel"}, stock.ops())
}

func TestCancelRestoreFailureKeepsOrderRetryable(t *testing.T) {
	svc, repo, stock := newOrderService(t)
	order := draftOrder(t, svc)
	_, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)

	// Transient restore failure must not strand the order in CANCELLED with
	// the stock still deducted.
	stock.restoreErr = inventory.ErrTransactionConflict
	_, err = svc.Cancel(context.Background(), 1, order.ID, nil)
	require.ErrorIs(t, err, inventory.ErrTransactionConflict)

	current, err := repo.Get(context.Background(), 1, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, current.Status)

	// Once the conflict clears, cancelling again succeeds.
	stock.restoreErr = nil
	cancelled, err := svc.Cancel(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, cancelled.Status)
	require.Equal(t, []string{"deduct", "restore_cancel"}, stock.ops())
}

func TestCancelCompensatesWhenTransitionFails(t *testing.T) {
	svc, repo, stock := newOrderService(t)
	order := draftOrder(t, svc)
	_, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)

	repo.transitionErrs[order.ID] = errors.New("connection reset")
	_, err = svc.Cancel(context.Background(), 1, order.ID, nil)
	require.Error(t, err)

	// The restored stock was taken back out and the order stayed CONFIRMED.
	require.Equal(t, []string{"deduct", "restore_cancel", "deduct"}, stock.ops())
	current, err := repo.Get(context.Background(), 1, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, current.Status)
}

func TestCancelRejectsTerminalStates(t *testing.T) {
	svc, _, _ := newOrderService(t)
	order := draftOrder(t, svc)
	_, err := svc.Cancel(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), 1, order.ID, nil)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRefundRestoresStock(t *testing.T) {
	svc, _, stock := newOrderService(t)
	order := draftOrder(t, svc)
	_, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)

	refunded, err := svc.Refund(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)
	require.Equal(t, OrderStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)
	require.Equal(t, []string{"deduct", "restore_return"}, stock.ops())
}

func TestRefundRestoreFailureKeepsOrderRetryable(t *testing.T) {
	svc, repo, stock := newOrderService(t)
	order := draftOrder(t, svc)
	_, err := svc.Confirm(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)

	stock.restoreErr = inventory.ErrTransactionConflict
	_, err = svc.Refund(context.Background(), 1, order.ID, nil)
	require.ErrorIs(t, err, inventory.ErrTransactionConflict)

	current, err := repo.Get(context.Background(), 1, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, current.Status)

	stock.restoreErr = nil
	refunded, err := svc.Refund(context.Background(), 1, order.ID, nil)
	require.NoError(t, err)
	require.Equal(t, OrderStatusRefunded, refunded.Status)
	require.Equal(t, []string{"deduct", "restore_return"}, stock.ops())
}

func TestRefundRejectsDraft(t *testing.T) {
	svc, _, _ := newOrderService(t)
	order := draftOrder(t, svc)

	_, err := svc.Refund(context.Background(), 1, order.ID, nil)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOrderTenantIsolation(t *testing.T) {
	svc, _, _ := newOrderService(t)
	order := draftOrder(t, svc)

	_, err := svc.Get(context.Background(), 2, order.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Confirm(context.Background(), 2, order.ID, nil)
	require.ErrorIs(t, err, ErrNotFound)
}
