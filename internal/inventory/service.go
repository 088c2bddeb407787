package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tradewind-commerce/tradewind/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListLevels(ctx context.Context, storeID int64, filter LevelsFilter) ([]StockUnit, error)
	ListLedger(ctx context.Context, storeID int64, ref UnitRef, filter LedgerFilter) ([]LedgerEntry, error)
}

// SKUResolverPort resolves bare SKUs to stock unit references in one batched
// lookup. Implemented by the catalog repository.
type SKUResolverPort interface {
	ResolveSKUs(ctx context.Context, storeID int64, skus []string) (map[string]UnitRef, error)
}

// AuditPort abstracts the append-only audit stream used for crossing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards at-least-once external callers.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates all stock mutations. It is stateless; every dependency
// is injected at construction.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	skus        SKUResolverPort
	audit       AuditPort
	idempotency IdempotencyPort
	alerts      AlertHandler
	cache       *LevelsCache
	timeout     time.Duration
	bulkLimit   int
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AdjustTimeout bounds each adjustment transaction. Zero means no bound
	// beyond the caller's context.
	AdjustTimeout time.Duration
	// BulkLimit caps the number of items accepted by BulkAdjust.
	BulkLimit int
}

const (
	defaultBulkLimit = 1000
	bulkBatchSize    = 50
	bulkWorkers      = 8
)

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, skus SKUResolverPort, audit AuditPort, idem IdempotencyPort, alerts AlertHandler, cache *LevelsCache, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BulkLimit <= 0 {
		cfg.BulkLimit = defaultBulkLimit
	}
	return &Service{
		logger:      logger,
		repo:        repo,
		skus:        skus,
		audit:       audit,
		idempotency: idem,
		alerts:      alerts,
		cache:       cache,
		timeout:     cfg.AdjustTimeout,
		bulkLimit:   cfg.BulkLimit,
	}
}

// AdjustStock applies one adjustment atomically: resolve the unit under a row
// lock, run the transition, persist the new quantity/status and exactly one
// ledger entry, all in a single transaction. On any rejection nothing is
// written.
func (s *Service) AdjustStock(ctx context.Context, storeID int64, req AdjustmentRequest) (StockUnit, error) {
	if err := validateRequest(storeID, req); err != nil {
		return StockUnit{}, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var unit StockUnit
	var crossing *LowStockEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		unit, crossing, err = s.applyAdjustment(ctx, tx, storeID, req)
		return err
	})
	if err != nil {
		return StockUnit{}, err
	}

	s.invalidateLevels(ctx, storeID)
	if crossing != nil {
		s.emitCrossing(ctx, storeID, req.ActorID, *crossing)
	}
	return unit, nil
}

// DeductStockForOrder removes stock for every line item of an order inside one
// transaction. Any single failure rolls back the whole order: an order never
// partially decrements inventory.
func (s *Service) DeductStockForOrder(ctx context.Context, storeID int64, items []OrderLine, orderID int64, actorID *int64) error {
	if storeID <= 0 || orderID <= 0 {
		return fmt.Errorf("%w: store and order required", ErrInvalidInput)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: order has no line items", ErrInvalidInput)
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: line item quantity must be > 0", ErrInvalidInput)
		}
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	// Lock rows in a stable key order so concurrent orders touching the same
	// units cannot deadlock each other.
	ordered := make([]OrderLine, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool { return lineLess(ordered[i], ordered[j]) })

	var crossings []LowStockEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, item := range ordered {
			req := AdjustmentRequest{
				Ref:      UnitRef{ProductID: item.ProductID, VariantID: item.VariantID},
				Quantity: item.Quantity,
				Type:     AdjustmentRemove,
				Reason:   ReasonOrderCreated,
				ActorID:  actorID,
				OrderID:  &orderID,
			}
			_, crossing, err := s.applyAdjustment(ctx, tx, storeID, req)
			if err != nil {
				return fmt.Errorf("deduct %s: %w", req.Ref, err)
			}
			if crossing != nil {
				crossings = append(crossings, *crossing)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateLevels(ctx, storeID)
	for _, crossing := range crossings {
		s.emitCrossing(ctx, storeID, actorID, crossing)
	}
	return nil
}

// RestoreStockForCancellation returns stock to inventory when an order is
// cancelled. Line items referencing units deleted since the order was placed
// are skipped with a warning instead of failing the restoration.
func (s *Service) RestoreStockForCancellation(ctx context.Context, storeID int64, items []OrderLine, orderID int64, actorID *int64) error {
	return s.restoreStock(ctx, storeID, items, orderID, actorID, ReasonOrderCancelled)
}

// RestoreStockForReturn returns stock to inventory for a processed return.
// Same tolerance for deleted units as cancellation.
func (s *Service) RestoreStockForReturn(ctx context.Context, storeID int64, items []OrderLine, orderID int64, actorID *int64) error {
	return s.restoreStock(ctx, storeID, items, orderID, actorID, ReasonReturnProcessed)
}

func (s *Service) restoreStock(ctx context.Context, storeID int64, items []OrderLine, orderID int64, actorID *int64, reason ReasonCode) error {
	if storeID <= 0 || orderID <= 0 {
		return fmt.Errorf("%w: store and order required", ErrInvalidInput)
	}
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ordered := make([]OrderLine, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool { return lineLess(ordered[i], ordered[j]) })

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, item := range ordered {
			req := AdjustmentRequest{
				Ref:      UnitRef{ProductID: item.ProductID, VariantID: item.VariantID},
				Quantity: item.Quantity,
				Type:     AdjustmentAdd,
				Reason:   reason,
				ActorID:  actorID,
				OrderID:  &orderID,
			}
			_, _, err := s.applyAdjustment(ctx, tx, storeID, req)
			if errors.Is(err, ErrNotFound) {
				// The unit was removed after the order was placed; a
				// discontinued product cannot receive its stock back.
				s.logger.Warn("restore skipped missing stock unit",
					slog.Int64("store_id", storeID),
					slog.Int64("order_id", orderID),
					slog.String("unit", req.Ref.String()),
					slog.String("reason", string(reason)))
				continue
			}
			if err != nil {
				return fmt.Errorf("restore %s: %w", req.Ref, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateLevels(ctx, storeID)
	return nil
}

// BulkItem is one entry of a bulk adjustment batch, typically CSV-derived.
// Either the SKU or an explicit product/variant reference identifies the unit.
type BulkItem struct {
	SKU       string
	ProductID int64
	VariantID *int64
	Quantity  int64
	Type      AdjustmentType
	Reason    ReasonCode
	Note      string
}

// BulkError reports one failed bulk item.
type BulkError struct {
	Index   int    `json:"index"`
	Item    string `json:"item"`
	Message string `json:"message"`
}

// BulkResult summarises per-item outcomes of a bulk adjustment.
type BulkResult struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []BulkError `json:"errors"`
}

// BulkAdjust applies up to the configured limit of adjustments, each in its
// own transaction. One item's failure does not affect the others; error
// reporting follows input order regardless of completion order.
func (s *Service) BulkAdjust(ctx context.Context, storeID int64, items []BulkItem, actorID *int64) (BulkResult, error) {
	if storeID <= 0 {
		return BulkResult{}, fmt.Errorf("%w: store required", ErrInvalidInput)
	}
	if len(items) == 0 {
		return BulkResult{}, fmt.Errorf("%w: no items", ErrInvalidInput)
	}
	if len(items) > s.bulkLimit {
		return BulkResult{}, fmt.Errorf("%w: %d items exceeds limit of %d", ErrInvalidInput, len(items), s.bulkLimit)
	}

	// Resolve bare SKUs in one batched lookup before touching any stock.
	var bare []string
	for _, item := range items {
		if item.ProductID == 0 && item.SKU != "" {
			bare = append(bare, item.SKU)
		}
	}
	resolved := map[string]UnitRef{}
	if len(bare) > 0 {
		if s.skus == nil {
			return BulkResult{}, errors.New("inventory: sku resolver not configured")
		}
		var err error
		resolved, err = s.skus.ResolveSKUs(ctx, storeID, bare)
		if err != nil {
			return BulkResult{}, fmt.Errorf("resolve skus: %w", err)
		}
	}

	outcomes := make([]error, len(items))
	for start := 0; start < len(items); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(items) {
			end = len(items)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(bulkWorkers)
		for idx := start; idx < end; idx++ {
			idx := idx
			item := items[idx]
			g.Go(func() error {
				outcomes[idx] = s.applyBulkItem(gctx, storeID, item, resolved, actorID)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return BulkResult{}, err
		}
	}

	result := BulkResult{Total: len(items)}
	for idx, err := range outcomes {
		if err == nil {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, BulkError{
			Index:   idx,
			Item:    bulkIdentifier(items[idx]),
			Message: err.Error(),
		})
	}

	s.invalidateLevels(ctx, storeID)
	return result, nil
}

func (s *Service) applyBulkItem(ctx context.Context, storeID int64, item BulkItem, resolved map[string]UnitRef, actorID *int64) error {
	ref := UnitRef{ProductID: item.ProductID, VariantID: item.VariantID}
	if item.ProductID == 0 {
		if item.SKU == "" {
			return fmt.Errorf("%w: item has neither sku nor product reference", ErrInvalidInput)
		}
		r, ok := resolved[item.SKU]
		if !ok {
			return fmt.Errorf("%w: sku %q", ErrNotFound, item.SKU)
		}
		ref = r
	}
	_, err := s.AdjustStock(ctx, storeID, AdjustmentRequest{
		Ref:      ref,
		Quantity: item.Quantity,
		Type:     item.Type,
		Reason:   item.Reason,
		Note:     item.Note,
		ActorID:  actorID,
	})
	return err
}

// ExternalSyncRequest carries an absolute quantity pushed by a marketplace
// integration. SyncEventID deduplicates at-least-once webhook delivery.
type ExternalSyncRequest struct {
	SyncEventID string
	SKU         string
	ProductID   int64
	VariantID   *int64
	Quantity    int64
	Note        string
}

// ErrSyncAlreadyProcessed indicates the sync event was applied by an earlier delivery.
var ErrSyncAlreadyProcessed = errors.New("inventory: sync event already processed")

// UpdateInventoryFromExternal sets the quantity of a unit to the value reported
// by an external marketplace. Redelivery of the same sync event is a no-op.
func (s *Service) UpdateInventoryFromExternal(ctx context.Context, storeID int64, req ExternalSyncRequest) (StockUnit, error) {
	if _, err := uuid.Parse(req.SyncEventID); err != nil {
		return StockUnit{}, fmt.Errorf("%w: invalid sync event id: %v", ErrInvalidInput, err)
	}
	ref := UnitRef{ProductID: req.ProductID, VariantID: req.VariantID}
	if req.ProductID == 0 {
		if req.SKU == "" {
			return StockUnit{}, fmt.Errorf("%w: sku or product reference required", ErrInvalidInput)
		}
		if s.skus == nil {
			return StockUnit{}, errors.New("inventory: sku resolver not configured")
		}
		resolved, err := s.skus.ResolveSKUs(ctx, storeID, []string{req.SKU})
		if err != nil {
			return StockUnit{}, fmt.Errorf("resolve sku: %w", err)
		}
		r, ok := resolved[req.SKU]
		if !ok {
			return StockUnit{}, fmt.Errorf("%w: sku %q", ErrNotFound, req.SKU)
		}
		ref = r
	}

	key := fmt.Sprintf("external_sync:%d:%s", storeID, req.SyncEventID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return StockUnit{}, ErrSyncAlreadyProcessed
			}
			return StockUnit{}, err
		}
		insertedKey = true
	}

	unit, err := s.AdjustStock(ctx, storeID, AdjustmentRequest{
		Ref:      ref,
		Quantity: req.Quantity,
		Type:     AdjustmentSet,
		Reason:   ReasonExternalSync,
		Note:     req.Note,
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return StockUnit{}, err
	}
	return unit, nil
}

// GetInventoryLevels lists stock units for a store, served from cache when warm.
func (s *Service) GetInventoryLevels(ctx context.Context, storeID int64, filter LevelsFilter) ([]StockUnit, error) {
	if storeID <= 0 {
		return nil, fmt.Errorf("%w: store required", ErrInvalidInput)
	}
	if units, ok, err := s.cache.Get(ctx, storeID, filter); err != nil {
		s.logger.Warn("levels cache read failed", slog.Any("error", err))
	} else if ok {
		return units, nil
	}
	units, err := s.repo.ListLevels(ctx, storeID, filter)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, storeID, filter, units); err != nil {
		s.logger.Warn("levels cache write failed", slog.Any("error", err))
	}
	return units, nil
}

// GetLowStockItems lists units at or below their low-stock threshold.
func (s *Service) GetLowStockItems(ctx context.Context, storeID int64, limit, offset int) ([]StockUnit, error) {
	return s.GetInventoryLevels(ctx, storeID, LevelsFilter{LowStockOnly: true, Limit: limit, Offset: offset})
}

// GetLedger returns the change history of one stock unit in creation order.
func (s *Service) GetLedger(ctx context.Context, storeID int64, ref UnitRef, filter LedgerFilter) ([]LedgerEntry, error) {
	if storeID <= 0 || ref.ProductID <= 0 {
		return nil, fmt.Errorf("%w: store and product required", ErrInvalidInput)
	}
	return s.repo.ListLedger(ctx, storeID, ref, filter)
}

// applyAdjustment runs the resolver, engine, unit update and ledger insert
// against the supplied transaction. It returns the post-adjustment snapshot
// and, when the unit crossed downward out of IN_STOCK, the crossing event.
func (s *Service) applyAdjustment(ctx context.Context, tx TxRepository, storeID int64, req AdjustmentRequest) (StockUnit, *LowStockEvent, error) {
	current, err := tx.GetUnitForUpdate(ctx, storeID, req.Ref)
	if err != nil {
		return StockUnit{}, nil, err
	}

	transition, err := ComputeTransition(current.Quantity, current.LowStockThreshold, req)
	if err != nil {
		return StockUnit{}, nil, err
	}

	if err := tx.UpdateUnit(ctx, storeID, req.Ref, transition.NewQty, transition.NewStatus); err != nil {
		return StockUnit{}, nil, err
	}

	entry := LedgerEntry{
		StoreID:     storeID,
		ProductID:   req.Ref.ProductID,
		VariantID:   req.Ref.VariantID,
		PreviousQty: current.Quantity,
		NewQty:      transition.NewQty,
		ChangeQty:   transition.ChangeQty,
		Reason:      req.Reason,
		Note:        req.Note,
		ActorID:     req.ActorID,
		OrderID:     req.OrderID,
	}
	if _, err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return StockUnit{}, nil, err
	}

	unit := current
	unit.Quantity = transition.NewQty
	unit.Status = transition.NewStatus

	var crossing *LowStockEvent
	if current.Status == StatusInStock && transition.NewStatus != StatusInStock {
		crossing = &LowStockEvent{
			StoreID:    storeID,
			ProductID:  req.Ref.ProductID,
			VariantID:  req.Ref.VariantID,
			SKU:        unit.SKU,
			Quantity:   transition.NewQty,
			Threshold:  current.LowStockThreshold,
			Status:     transition.NewStatus,
			OccurredAt: time.Now().UTC(),
		}
	}
	return unit, crossing, nil
}

// emitCrossing records the crossing on the audit stream and hands it to the
// alert handler. Both are best-effort after commit; failures are logged, never
// propagated to the adjustment caller.
func (s *Service) emitCrossing(ctx context.Context, storeID int64, actorID *int64, evt LowStockEvent) {
	ref := UnitRef{ProductID: evt.ProductID, VariantID: evt.VariantID}
	if s.audit != nil {
		log := shared.AuditLog{
			StoreID:  storeID,
			Action:   "inventory:low_stock_crossing",
			Entity:   "stock_unit",
			EntityID: ref.String(),
			Meta: map[string]any{
				"sku":       evt.SKU,
				"quantity":  evt.Quantity,
				"threshold": evt.Threshold,
				"status":    string(evt.Status),
			},
			At: evt.OccurredAt,
		}
		if actorID != nil {
			log.ActorID = *actorID
		}
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("record low stock crossing", slog.Any("error", err), slog.String("unit", ref.String()))
		}
	}
	if s.alerts != nil {
		if err := s.alerts.HandleLowStockCrossing(ctx, evt); err != nil {
			s.logger.Warn("dispatch low stock alert", slog.Any("error", err), slog.String("unit", ref.String()))
		}
	}
}

func (s *Service) invalidateLevels(ctx context.Context, storeID int64) {
	if err := s.cache.Invalidate(ctx, storeID); err != nil {
		s.logger.Warn("invalidate levels cache", slog.Any("error", err), slog.Int64("store_id", storeID))
	}
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func validateRequest(storeID int64, req AdjustmentRequest) error {
	if storeID <= 0 {
		return fmt.Errorf("%w: store required", ErrInvalidInput)
	}
	if req.Ref.ProductID <= 0 {
		return fmt.Errorf("%w: product required", ErrInvalidInput)
	}
	if req.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0, got %d", ErrInvalidInput, req.Quantity)
	}
	switch req.Type {
	case AdjustmentAdd, AdjustmentRemove, AdjustmentSet:
	default:
		return fmt.Errorf("%w: unknown adjustment type %q", ErrInvalidInput, req.Type)
	}
	if !req.Reason.Valid() {
		return fmt.Errorf("%w: unknown reason code %q", ErrInvalidInput, req.Reason)
	}
	return nil
}

func lineLess(a, b OrderLine) bool {
	if a.ProductID != b.ProductID {
		return a.ProductID < b.ProductID
	}
	av, bv := int64(0), int64(0)
	if a.VariantID != nil {
		av = *a.VariantID
	}
	if b.VariantID != nil {
		bv = *b.VariantID
	}
	return av < bv
}

func bulkIdentifier(item BulkItem) string {
	if item.SKU != "" {
		return item.SKU
	}
	return UnitRef{ProductID: item.ProductID, VariantID: item.VariantID}.String()
}
